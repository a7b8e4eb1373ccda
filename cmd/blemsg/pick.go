package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/sgrd/blemsg/internal/bledb"
	"github.com/sgrd/blemsg/internal/gatt"
	"github.com/sgrd/blemsg/session"
)

// findCharacteristic resolves an explicitly named target. charUUID is
// required; serviceUUID narrows the search when the characteristic UUID
// appears under more than one service.
func findCharacteristic(services []*gatt.Service, serviceUUID, charUUID string) (*gatt.Characteristic, error) {
	wantChar := gatt.NormalizeUUID(charUUID)
	wantSvc := ""
	if serviceUUID != "" {
		wantSvc = gatt.NormalizeUUID(serviceUUID)
	}

	var matches []*gatt.Characteristic
	for _, svc := range services {
		if wantSvc != "" && svc.UUID != wantSvc {
			continue
		}
		for _, char := range svc.Characteristics {
			if char.UUID == wantChar {
				matches = append(matches, char)
			}
		}
	}

	switch len(matches) {
	case 0:
		if wantSvc != "" {
			return nil, fmt.Errorf("characteristic %s not found in service %s", charUUID, serviceUUID)
		}
		return nil, fmt.Errorf("characteristic %s not found on device", charUUID)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("characteristic %s is ambiguous (%d services expose it); use --service", charUUID, len(matches))
	}
}

// chooseCharacteristic picks the exchange target: an explicit
// --service/--char pair wins; otherwise the capability preference list
// decides, prompting when several characteristics qualify and stdin is a
// terminal.
func chooseCharacteristic(services []*gatt.Service, serviceUUID, charUUID string, prefs []gatt.Capability) (*gatt.Characteristic, error) {
	if charUUID != "" {
		return findCharacteristic(services, serviceUUID, charUUID)
	}

	for _, cap := range prefs {
		cands := session.Candidates(services, cap)
		if wantSvc := serviceUUID; wantSvc != "" {
			cands = filterByService(cands, wantSvc)
		}
		switch {
		case len(cands) == 1:
			return cands[0], nil
		case len(cands) > 1:
			if term.IsTerminal(int(os.Stdin.Fd())) {
				return promptPick(cands)
			}
			return cands[0], nil
		}
	}

	char, _, err := session.SelectWithFallback(services, prefs)
	return char, err
}

func filterByService(chars []*gatt.Characteristic, serviceUUID string) []*gatt.Characteristic {
	want := gatt.NormalizeUUID(serviceUUID)
	var out []*gatt.Characteristic
	for _, char := range chars {
		if char.Service != nil && char.Service.UUID == want {
			out = append(out, char)
		}
	}
	return out
}

// chooseDevice picks the target of an address-less send from the
// connectable candidates: a single candidate is taken as-is, several
// prompt when stdin is a terminal and fall back to the first otherwise.
func chooseDevice(devices []gatt.Device) (gatt.Device, error) {
	switch {
	case len(devices) == 0:
		return gatt.Device{}, fmt.Errorf("no connectable devices found")
	case len(devices) == 1:
		return devices[0], nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return promptPickDevice(devices)
	}
	return devices[0], nil
}

// promptPickDevice lists connectable devices and reads a 1-based choice
// from stdin.
func promptPickDevice(devices []gatt.Device) (gatt.Device, error) {
	fmt.Println("Multiple connectable devices found:")
	for i, dev := range devices {
		fmt.Printf("  [%d] %s (%s, %d dBm)\n", i+1, dev.DisplayName(), dev.Address, dev.RSSI())
	}
	fmt.Printf("Pick one [1-%d]: ", len(devices))

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return gatt.Device{}, fmt.Errorf("read selection: %w", err)
	}
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > len(devices) {
		return gatt.Device{}, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	return devices[choice-1], nil
}

// promptPick lists the candidates and reads a 1-based choice from stdin.
func promptPick(cands []*gatt.Characteristic) (*gatt.Characteristic, error) {
	fmt.Println("Multiple characteristics qualify:")
	for i, char := range cands {
		fmt.Printf("  [%d] %s (%s)\n", i+1, describeCharacteristic(char), char.Capabilities)
	}
	fmt.Printf("Pick one [1-%d]: ", len(cands))

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > len(cands) {
		return nil, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	return cands[choice-1], nil
}

// describeCharacteristic renders "service/char", substituting assigned
// names where known.
func describeCharacteristic(char *gatt.Characteristic) string {
	charLabel := char.UUID
	if name := bledb.LookupCharacteristic(char.UUID); name != "" {
		charLabel = fmt.Sprintf("%s (%s)", name, char.UUID)
	}
	if char.Service == nil {
		return charLabel
	}
	svcLabel := char.Service.UUID
	if name := bledb.LookupService(char.Service.UUID); name != "" {
		svcLabel = name
	}
	return svcLabel + "/" + charLabel
}
