// Package devices reads device records from sysfs.
package devices

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerr "github.com/cockroachdb/errors"
)

// DefaultSysfsRoot is where sysfs is mounted.
const DefaultSysfsRoot = "/sys"

// Record is one device's uevent properties, plus _PATH for the sysfs path.
type Record map[string]string

func (r Record) Get(key string) string { return r[key] }

// ParseUevent parses KEY=VALUE lines. Lines without '=' are ignored.
func ParseUevent(data string) Record {
	rec := Record{}
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || key == "" {
			continue
		}
		rec[key] = value
	}
	return rec
}

// Class returns the records of every device under <root>/class/<class>,
// sorted by path. A missing class directory yields no records.
func Class(root, class string) ([]Record, error) {
	dir := filepath.Join(root, "class", class)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrapf(err, "list %s", dir)
	}

	var out []Record
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(filepath.Join(path, "uevent"))
		if err != nil {
			continue
		}
		rec := ParseUevent(string(data))
		rec["_PATH"] = path
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["_PATH"] < out[j]["_PATH"] })
	return out, nil
}

// PowerSupplies lists batteries and adapters.
func PowerSupplies(root string) ([]Record, error) {
	return Class(root, "power_supply")
}

// HasBattery reports whether any power supply looks like a battery.
func HasBattery(records []Record) bool {
	for _, r := range records {
		if r["POWER_SUPPLY_TYPE"] == "Battery" || strings.Contains(r["POWER_SUPPLY_NAME"], "BAT") {
			return true
		}
	}
	return false
}
