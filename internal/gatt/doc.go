// Package gatt defines the BLE central-role data model, the radio adapter
// contract, and the error taxonomy shared by the scanner, prober, and
// session packages.
//
// Nothing in this package touches a host Bluetooth stack; the production
// adapter lives in internal/goble and test doubles in internal/testutils.
package gatt
