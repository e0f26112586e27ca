package device

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadInventory reads an inventory file and builds a validated Registry.
//
// The file may be JSON or YAML; both are decoded by the YAML parser.
//
// Parameters:
//   - path: Path to the inventory resource
//
// Returns:
//   - *Registry: Validated registry
//   - error: Read error or a wrapped configuration error
func LoadInventory(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	devices, err := ParseInventory(data)
	if err != nil {
		return nil, err
	}
	return New(devices)
}

// ParseInventory decodes an inventory document without cross-validating it.
//
// The document is a sequence of single-key mappings from a kind name to
// {id, settings}:
//
//	[
//	  {"Water": {"id": 1, "settings": {"moisture_low_red_alert": 20.0, ...}}},
//	  {"Pump":  {"id": 1, "settings": {}}}
//	]
//
// Durations are either {secs, nanos} objects or Go duration strings ("60s").
// Times of day are [hour, minute, second, nanos] sequences or "HH:MM[:SS]" strings.
func ParseInventory(data []byte) ([]Device, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInventory, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidInventory)
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: line %d: expected a list of devices", ErrInvalidInventory, root.Line)
	}

	devices := make([]Device, 0, len(root.Content))
	for i, item := range root.Content {
		d, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("inventory entry %d: %w", i, err)
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// rawRecord is the value side of a {Kind: {...}} record.
type rawRecord struct {
	ID       *int      `yaml:"id"`
	Settings yaml.Node `yaml:"settings"`
}

func decodeRecord(item *yaml.Node) (Device, error) {
	if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
		return Device{}, fmt.Errorf("%w: line %d: expected a single-key mapping", ErrInvalidInventory, item.Line)
	}
	kind, err := ParseKind(item.Content[0].Value)
	if err != nil {
		return Device{}, err
	}

	var rec rawRecord
	if err := item.Content[1].Decode(&rec); err != nil {
		return Device{}, fmt.Errorf("%w: line %d: %v", ErrInvalidInventory, item.Line, err)
	}
	if rec.ID == nil {
		return Device{}, fmt.Errorf("%s: %w: id", kind, ErrMissingSetting)
	}

	d := Device{Kind: kind, ID: *rec.ID}
	settings := &rec.Settings
	if settings.Kind == 0 {
		// Absent settings decode as an empty mapping.
		settings = &yaml.Node{Kind: yaml.MappingNode}
	}

	switch kind {
	case KindAir:
		d.Settings, err = decodeAir(d.Ref(), settings)
	case KindWater:
		d.Settings, err = decodeWater(d.Ref(), settings)
	case KindLight:
		d.Settings, err = decodeLight(d.Ref(), settings)
	default:
		d.Settings = Passive{}
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

// field pairs a settings key with whether it was present.
type field struct {
	name    string
	present bool
}

func require(ref Ref, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: %s", ref, ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

type rawAir struct {
	TempHighYellowWarning *float64 `yaml:"temp_high_yellow_warning"`
	TempHighRedAlert      *float64 `yaml:"temp_high_red_alert"`
	TempFanLow            *float64 `yaml:"temp_fan_low"`
	TempFanHigh           *float64 `yaml:"temp_fan_high"`
	FanRPMLowRedAlert     *float64 `yaml:"fan_rpm_low_red_alert"`
}

func decodeAir(ref Ref, node *yaml.Node) (Settings, error) {
	var raw rawAir
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", ref, ErrInvalidInventory, err)
	}
	if err := require(ref,
		field{"temp_high_yellow_warning", raw.TempHighYellowWarning != nil},
		field{"temp_high_red_alert", raw.TempHighRedAlert != nil},
		field{"temp_fan_low", raw.TempFanLow != nil},
		field{"temp_fan_high", raw.TempFanHigh != nil},
		field{"fan_rpm_low_red_alert", raw.FanRPMLowRedAlert != nil},
	); err != nil {
		return nil, err
	}
	return AirSettings{
		TempHighYellowWarning: *raw.TempHighYellowWarning,
		TempHighRedAlert:      *raw.TempHighRedAlert,
		TempFanLow:            *raw.TempFanLow,
		TempFanHigh:           *raw.TempFanHigh,
		FanRPMLowRedAlert:     *raw.FanRPMLowRedAlert,
	}, nil
}

type rawPosition struct {
	ArmID *int `yaml:"arm_id"`
	X     *int `yaml:"x"`
	Y     *int `yaml:"y"`
	Z     *int `yaml:"z"`
}

type rawWater struct {
	MoistureLowRedAlert       *float64     `yaml:"moisture_low_red_alert"`
	MoistureLowYellowWarning  *float64     `yaml:"moisture_low_yellow_warning"`
	MoistureLimitWater        *float64     `yaml:"moisture_limit_water"`
	MoistureHighYellowWarning *float64     `yaml:"moisture_high_yellow_warning"`
	MoistureHighRedAlert      *float64     `yaml:"moisture_high_red_alert"`
	TankID                    *int         `yaml:"tank_id"`
	PumpID                    *int         `yaml:"pump_id"`
	PumpTime                  *duration    `yaml:"pump_time"`
	SettlingTime              *duration    `yaml:"settling_time"`
	Position                  *rawPosition `yaml:"position"`
}

func decodeWater(ref Ref, node *yaml.Node) (Settings, error) {
	var raw rawWater
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", ref, ErrInvalidInventory, err)
	}
	if err := require(ref,
		field{"moisture_low_red_alert", raw.MoistureLowRedAlert != nil},
		field{"moisture_low_yellow_warning", raw.MoistureLowYellowWarning != nil},
		field{"moisture_limit_water", raw.MoistureLimitWater != nil},
		field{"moisture_high_yellow_warning", raw.MoistureHighYellowWarning != nil},
		field{"moisture_high_red_alert", raw.MoistureHighRedAlert != nil},
		field{"tank_id", raw.TankID != nil},
		field{"pump_id", raw.PumpID != nil},
		field{"pump_time", raw.PumpTime != nil},
		field{"settling_time", raw.SettlingTime != nil},
		field{"position", raw.Position != nil},
	); err != nil {
		return nil, err
	}
	p := raw.Position
	if err := require(ref,
		field{"position.arm_id", p.ArmID != nil},
		field{"position.x", p.X != nil},
		field{"position.y", p.Y != nil},
		field{"position.z", p.Z != nil},
	); err != nil {
		return nil, err
	}

	return WaterSettings{
		MoistureLowRedAlert:       *raw.MoistureLowRedAlert,
		MoistureLowYellowWarning:  *raw.MoistureLowYellowWarning,
		MoistureLimitWater:        *raw.MoistureLimitWater,
		MoistureHighYellowWarning: *raw.MoistureHighYellowWarning,
		MoistureHighRedAlert:      *raw.MoistureHighRedAlert,
		TankID:                    *raw.TankID,
		PumpID:                    *raw.PumpID,
		PumpTime:                  time.Duration(*raw.PumpTime),
		SettlingTime:              time.Duration(*raw.SettlingTime),
		Position:                  Position{ArmID: *p.ArmID, X: *p.X, Y: *p.Y, Z: *p.Z},
	}, nil
}

type rawLight struct {
	LightLevelLowYellowWarning *float64   `yaml:"lightlevel_low_yellow_warning"`
	LightLevelLowRedAlert      *float64   `yaml:"lightlevel_low_red_alert"`
	LampOn                     *timeOfDay `yaml:"lamp_on"`
	LampOff                    *timeOfDay `yaml:"lamp_off"`
}

func decodeLight(ref Ref, node *yaml.Node) (Settings, error) {
	var raw rawLight
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", ref, ErrInvalidInventory, err)
	}
	if err := require(ref,
		field{"lightlevel_low_yellow_warning", raw.LightLevelLowYellowWarning != nil},
		field{"lightlevel_low_red_alert", raw.LightLevelLowRedAlert != nil},
		field{"lamp_on", raw.LampOn != nil},
		field{"lamp_off", raw.LampOff != nil},
	); err != nil {
		return nil, err
	}
	return LightSettings{
		LightLevelLowYellowWarning: *raw.LightLevelLowYellowWarning,
		LightLevelLowRedAlert:      *raw.LightLevelLowRedAlert,
		LampOn:                     TimeOfDay(*raw.LampOn),
		LampOff:                    TimeOfDay(*raw.LampOff),
	}, nil
}

// duration decodes {secs, nanos} objects and Go duration strings.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var raw struct {
			Secs  *int64 `yaml:"secs"`
			Nanos int64  `yaml:"nanos"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.Secs == nil {
			return fmt.Errorf("line %d: duration object needs secs", node.Line)
		}
		*d = duration(time.Duration(*raw.Secs)*time.Second + time.Duration(raw.Nanos))
		return nil
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = duration(parsed)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported duration", node.Line)
	}
}

// timeOfDay decodes [h, m, s, nanos] sequences and "HH:MM[:SS]" strings.
type timeOfDay TimeOfDay

func (t *timeOfDay) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var parts []int
		if err := node.Decode(&parts); err != nil {
			return err
		}
		if len(parts) < 2 || len(parts) > 4 {
			return fmt.Errorf("line %d: time of day needs 2 to 4 components, got %d", node.Line, len(parts))
		}
		for len(parts) < 4 {
			parts = append(parts, 0)
		}
		*t = timeOfDay{Hour: parts[0], Minute: parts[1], Second: parts[2], Nano: parts[3]}
		return nil
	case yaml.ScalarNode:
		for _, layout := range []string{"15:04:05", "15:04"} {
			if parsed, err := time.Parse(layout, node.Value); err == nil {
				*t = timeOfDay(TimeOfDayOf(parsed))
				return nil
			}
		}
		return fmt.Errorf("line %d: invalid time of day %q", node.Line, node.Value)
	default:
		return fmt.Errorf("line %d: unsupported time of day", node.Line)
	}
}
