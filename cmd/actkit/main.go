// Command actkit runs an action bus service and sends acts to it.
package main

func main() {
	Execute()
}
