// Package device defines the capability contract between the peripheral monitor
// and a radio stack.
//
// An Adapter scans and connects; a Gatt handle performs GATT operations whose
// results are delivered asynchronously through GattCallback. Concrete adapters
// live in sub-packages (go-ble, tinygo) and are selected by devicefactory.
//
// The package also carries the shared error taxonomy and the fixed 128-bit
// identifiers of the Device Information, Heart Rate and Battery services.
package device
