// Package main is the entry point for the tillstack billing console.
//
//	@title						Tillstack - Subscription Billing Console
//	@version					1.0
//	@description				Admin console for subscription pricing, add-on ledgers, and invoice composition for multi-tenant POS deployments.
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	AdminAuth
//	@in							header
//	@name						X-API-Key
//	@description				Admin API key authentication
package main

func main() {
	Execute()
}
