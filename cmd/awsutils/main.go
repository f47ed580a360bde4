// awsutils - AWS inventory, cost and EKS access utilities
// Query. Format. Emit.
package main

func main() {
	Execute()
}
