package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

// PCIDevice holds the ids the kernel publishes for a PCI function, as
// lower-case four digit hex.
type PCIDevice struct {
	Vendor    string
	Device    string
	SubVendor string
	SubDevice string
}

// PCINamer resolves a PCI device to a product name, or "" when unknown.
type PCINamer func(PCIDevice) string

// pciDatabase loads pci.ids once. A missing database leaves it nil.
var pciDatabase = sync.OnceValue(func() *pcidb.PCIDB {
	db, err := pcidb.New()
	if err != nil {
		return nil
	}
	return db
})

// LookupPCIName names dev from the system pci.ids database, preferring the
// subsystem entry over the generic product name.
func LookupPCIName(dev PCIDevice) string {
	db := pciDatabase()
	if db == nil || dev.Vendor == "" || dev.Device == "" {
		return ""
	}
	product := db.Products[dev.Vendor+dev.Device]
	if product == nil {
		return ""
	}
	if dev.SubVendor != "" {
		for _, sub := range product.Subsystems {
			if sub != nil && sub.Name != "" && strings.EqualFold(sub.VendorID, dev.SubVendor) && strings.EqualFold(sub.ID, dev.SubDevice) {
				return sub.Name
			}
		}
	}
	return product.Name
}

// deviceName names the PCI device behind dir via namer. Devices without a
// PCI_ID in their uevent yield "".
func deviceName(root *os.Root, dir string, namer PCINamer) string {
	if namer == nil {
		return ""
	}
	dev, ok := readPCIDevice(root, dir)
	if !ok {
		return ""
	}
	return namer(dev)
}

func readPCIDevice(root *os.Root, dir string) (PCIDevice, bool) {
	data, err := root.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		return PCIDevice{}, false
	}

	var (
		dev   PCIDevice
		found bool
	)
	for line := range strings.Lines(string(data)) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "PCI_ID":
			dev.Vendor, dev.Device, err = parsePCIPair(value)
			found = err == nil
		case "PCI_SUBSYS_ID":
			if sv, sd, err := parsePCIPair(value); err == nil {
				dev.SubVendor, dev.SubDevice = sv, sd
			}
		}
	}
	return dev, found
}

// parsePCIPair splits a "VVVV:DDDD" uevent value into normalized ids.
func parsePCIPair(value string) (string, string, error) {
	hi, lo, ok := strings.Cut(value, ":")
	if !ok {
		return "", "", fmt.Errorf("pci id %q: missing separator", value)
	}
	a, err := parsePCIHex(hi)
	if err != nil {
		return "", "", err
	}
	b, err := parsePCIHex(lo)
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

func parsePCIHex(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		raw = raw[2:]
	}
	n, err := strconv.ParseUint(raw, 16, 16)
	if err != nil {
		return "", fmt.Errorf("pci id %q: %w", raw, err)
	}
	return fmt.Sprintf("%04x", n), nil
}
