// Package main is the entry point for schemaql.
package main

func main() {
	Execute()
}
