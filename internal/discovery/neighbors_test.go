package discovery

import "testing"

func TestParseWindowsNeighbors(t *testing.T) {
	output := `
Interface: 192.168.1.100 --- 0x4
  Internet Address      Physical Address      Type
  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
  192.168.1.2           11-22-33-44-55-66     dynamic
  192.168.1.255         ff-ff-ff-ff-ff-ff     static
  224.0.0.22            01-00-5e-00-00-16     static
`
	table := ParseNeighbors(output, "windows")
	if len(table) != 3 {
		t.Errorf("entry count = %d, want 3 (broadcast skipped)", len(table))
	}
	if table["192.168.1.1"] != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("192.168.1.1 = %q, want AA:BB:CC:DD:EE:FF", table["192.168.1.1"])
	}
	if table["192.168.1.2"] != "11:22:33:44:55:66" {
		t.Errorf("192.168.1.2 = %q, want 11:22:33:44:55:66", table["192.168.1.2"])
	}
	if _, ok := table["192.168.1.255"]; ok {
		t.Error("broadcast entry not skipped")
	}
}

func TestParseUnixNeighbors(t *testing.T) {
	output := `? (192.168.1.1) at aa:bb:cc:dd:ee:ff [ether] on eth0
gateway (192.168.1.2) at 11:22:33:44:55:66 [ether] on eth0
? (192.168.1.3) at (incomplete) on eth0
? (192.168.1.4) at 00:00:00:00:00:00 [ether] on eth0
`
	for _, goos := range []string{"linux", "darwin"} {
		t.Run(goos, func(t *testing.T) {
			table := ParseNeighbors(output, goos)
			if len(table) != 2 {
				t.Errorf("entry count = %d, want 2 (incomplete and all-zero skipped)", len(table))
			}
			if table["192.168.1.1"] != "AA:BB:CC:DD:EE:FF" {
				t.Errorf("192.168.1.1 = %q, want AA:BB:CC:DD:EE:FF", table["192.168.1.1"])
			}
			if table["192.168.1.2"] != "11:22:33:44:55:66" {
				t.Errorf("192.168.1.2 = %q, want 11:22:33:44:55:66", table["192.168.1.2"])
			}
		})
	}
}

func TestParseNeighbors_EmptyOutput(t *testing.T) {
	for _, goos := range []string{"linux", "windows", "darwin"} {
		t.Run(goos, func(t *testing.T) {
			table := ParseNeighbors("", goos)
			if len(table) != 0 {
				t.Errorf("expected empty table, got %d entries", len(table))
			}
		})
	}
}

func TestParseNeighbors_UnknownPlatform(t *testing.T) {
	table := ParseNeighbors("anything", "freebsd")
	if len(table) != 0 {
		t.Errorf("expected empty table for unknown platform, got %d entries", len(table))
	}
}
