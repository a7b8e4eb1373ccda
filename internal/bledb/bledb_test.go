package bledb

import "testing"

// TestLookupServiceWithFullUUID verifies lookup works with short, dashed
// full, and dashless full UUID forms.
func TestLookupServiceWithFullUUID(t *testing.T) {
	tests := []struct {
		name string
		uuid string
		want string
	}{
		{"short form", "180d", "Heart Rate"},
		{"short form uppercase", "180F", "Battery Service"},
		{"full dashed form", "0000180d-0000-1000-8000-00805f9b34fb", "Heart Rate"},
		{"full dashless form", "0000180d00001000800000805f9b34fb", "Heart Rate"},
		{"vendor UUID not in base range", "19b10000-e8f2-537e-4f6c-d104768a1214", ""},
		{"unknown short", "ffff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LookupService(tt.uuid); got != tt.want {
				t.Errorf("LookupService(%q) = %q, want %q", tt.uuid, got, tt.want)
			}
		})
	}
}

func TestLookupCharacteristicWithFullUUID(t *testing.T) {
	if got := LookupCharacteristic("00002A19-0000-1000-8000-00805F9B34FB"); got != "Battery Level" {
		t.Errorf("LookupCharacteristic full form = %q, want Battery Level", got)
	}
	if got := LookupCharacteristic("2a37"); got != "Heart Rate Measurement" {
		t.Errorf("LookupCharacteristic short form = %q", got)
	}
}

func TestLookupCompany(t *testing.T) {
	if got := LookupCompany(0x004c); got != "Apple" {
		t.Errorf("LookupCompany(0x004c) = %q, want Apple", got)
	}
	if got := LookupCompany(0xfffe); got != "" {
		t.Errorf("LookupCompany(unknown) = %q, want empty", got)
	}
}
