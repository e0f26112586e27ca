// Package device provides the device inventory of the grow controller.
//
// A device is an addressable sensor or actuator unit identified by its kind
// and an integer id that is unique within the kind. Each kind carries its own
// settings record:
//
//	Air    temperature bands, fan switch points, fan RPM floor
//	Water  moisture bands, tank/pump/arm references, pump and settling times, arm position
//	Light  illuminance floors, daily lamp on/off times
//	Arm, Pump, Tank, Aux  no settings; shared physical resources referenced by id
//
// # Key Types
//
//   - Device: tagged union over Kind, holding one Settings variant
//   - Ref: (Kind, id) address used as a map key throughout the controller
//   - Registry: immutable, validated collection of devices
//
// # Usage
//
//	registry, err := device.LoadInventory(cfg.Inventory.Path)
//	if err != nil {
//	    return err // configuration error, do not start
//	}
//	water, err := registry.Water(1)
//
// # Validation
//
// New rejects an inventory whose Water thresholds are not strictly
// increasing (red low < yellow low < limit < yellow high < red high), whose
// Light yellow floor is not above the red floor, or whose Water devices
// reference a Tank, Pump or Arm that is not declared. References are weak:
// they are plain ids resolved through the Registry at use time.
//
// # Thread Safety
//
// The Registry is read-only after New returns and may be shared freely.
package device
