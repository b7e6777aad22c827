package collector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/topabomb/BatteryMaster/internal/model"
)

// SysfsSource reads the local battery from /sys/class/power_supply and host
// metrics from /proc and /sys/class/backlight. root is prepended to every
// path so tests can point it at a fixture tree.
type SysfsSource struct {
	root      string
	battery   string
	backlight string
	cpus      int
}

// NewSysfsSource creates a source for the named power_supply device. An empty
// backlight picks the first device under /sys/class/backlight.
func NewSysfsSource(root, battery, backlight string) *SysfsSource {
	if root == "" {
		root = "/"
	}
	return &SysfsSource{root: root, battery: battery, backlight: backlight, cpus: runtime.NumCPU()}
}

func (s *SysfsSource) Name() string { return "sysfs:" + s.battery }

// ReadBattery parses the power_supply uevent file of the battery.
func (s *SysfsSource) ReadBattery(_ context.Context) (model.BatterySnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "sys/class/power_supply", s.battery, "uevent"))
	if err != nil {
		return model.BatterySnapshot{}, &ReadError{Source: s.Name(), Part: "battery", Err: err}
	}
	b, err := batteryFromUevent(parseUevent(data))
	if err != nil {
		return b, &ReadError{Source: s.Name(), Part: "battery", Err: err}
	}
	return b, nil
}

// ReadSystem reads the load average and screen brightness. A host without a
// backlight reports zero brightness.
func (s *SysfsSource) ReadSystem(_ context.Context) (model.SystemSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "proc/loadavg"))
	if err != nil {
		return model.SystemSnapshot{}, &ReadError{Source: s.Name(), Part: "system", Err: err}
	}
	load, err := parseLoadavg(data, s.cpus)
	if err != nil {
		return model.SystemSnapshot{}, &ReadError{Source: s.Name(), Part: "system", Err: err}
	}

	snap := model.SystemSnapshot{CPULoad: load}

	dir := s.backlightDir()
	if dir == "" {
		return snap, nil
	}
	cur, err := os.ReadFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return snap, &ReadError{Source: s.Name(), Part: "system", Err: err}
	}
	maxB, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return snap, &ReadError{Source: s.Name(), Part: "system", Err: err}
	}
	snap.ScreenBrightness, err = parseBrightness(cur, maxB)
	if err != nil {
		return snap, &ReadError{Source: s.Name(), Part: "system", Err: err}
	}
	return snap, nil
}

func (s *SysfsSource) backlightDir() string {
	base := filepath.Join(s.root, "sys/class/backlight")
	if s.backlight != "" {
		return filepath.Join(base, s.backlight)
	}
	matches, _ := filepath.Glob(filepath.Join(base, "*"))
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// parseUevent splits POWER_SUPPLY_KEY=VALUE lines into a map keyed by KEY.
func parseUevent(data []byte) map[string]string {
	kv := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		kv[strings.TrimPrefix(key, "POWER_SUPPLY_")] = val
	}
	return kv
}

// micro returns a micro-unit value (µV, µW, µWh, µAh, µA) scaled to its base unit.
func micro(kv map[string]string, key string) (float64, bool) {
	v, ok := kv[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n / 1e6, true
}

// batteryFromUevent converts uevent fields into a snapshot. Energy figures
// come from ENERGY_* when the driver reports them and from CHARGE_* times the
// nominal voltage otherwise.
func batteryFromUevent(kv map[string]string) (model.BatterySnapshot, error) {
	status, ok := kv["STATUS"]
	if !ok {
		return model.BatterySnapshot{}, fmt.Errorf("uevent has no POWER_SUPPLY_STATUS")
	}

	voltage, _ := micro(kv, "VOLTAGE_NOW")
	nominal, ok := micro(kv, "VOLTAGE_MIN_DESIGN")
	if !ok {
		nominal = voltage
	}

	var now, full, design float64
	if v, ok := micro(kv, "ENERGY_NOW"); ok {
		now = v
		full, _ = micro(kv, "ENERGY_FULL")
		design, _ = micro(kv, "ENERGY_FULL_DESIGN")
	} else if v, ok := micro(kv, "CHARGE_NOW"); ok {
		now = v * nominal
		f, _ := micro(kv, "CHARGE_FULL")
		d, _ := micro(kv, "CHARGE_FULL_DESIGN")
		full, design = f*nominal, d*nominal
	}

	rate, ok := micro(kv, "POWER_NOW")
	if !ok {
		current, _ := micro(kv, "CURRENT_NOW")
		rate = current * voltage
	}

	b := model.BatterySnapshot{
		State:          model.ParseBatteryState(status),
		EnergyRate:     float32(math.Abs(rate)),
		Voltage:        float32(voltage),
		Capacity:       float32(now),
		FullCapacity:   float32(full),
		DesignCapacity: float32(design),
	}
	if pct, ok := kv["CAPACITY"]; ok {
		if n, err := strconv.ParseFloat(pct, 64); err == nil {
			b.Percentage = float32(n)
		}
	} else if full > 0 {
		b.Percentage = float32(now / full * 100)
	}
	if design > 0 {
		b.StateOfHealth = float32(full / design * 100)
	}
	return b, nil
}

// parseLoadavg turns the 1-minute load average into a percentage of cpus.
func parseLoadavg(data []byte, cpus int) (float32, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty loadavg")
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing loadavg %q: %w", fields[0], err)
	}
	if cpus < 1 {
		cpus = 1
	}
	return float32(math.Min(load/float64(cpus)*100, 100)), nil
}

// parseBrightness returns brightness as a percentage of max_brightness.
func parseBrightness(cur, maxB []byte) (float32, error) {
	c, err := strconv.ParseFloat(strings.TrimSpace(string(cur)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing brightness: %w", err)
	}
	m, err := strconv.ParseFloat(strings.TrimSpace(string(maxB)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing max_brightness: %w", err)
	}
	if m <= 0 {
		return 0, nil
	}
	return float32(c / m * 100), nil
}
