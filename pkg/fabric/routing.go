package fabric

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/testbed-tools/vmtopo/pkg/shell"
	"github.com/testbed-tools/vmtopo/pkg/topo"
	"github.com/testbed-tools/vmtopo/pkg/util"
)

const (
	rtSlotStart = 100
	// the kernel reserves the tail of the table id space
	rtSlotMax = 252
)

// SetupNetnsSourceRouting installs policy routing for one active-active
// netns port so return traffic leaves through the port it arrived on. Each
// port owns a routing table named after itself; the table id is the port
// index offset into the slot range. Routing table names are global, so a
// slot already registered in rt_tables is reused.
func (f *Fabric) SetupNetnsSourceRouting(hostIfIndex int, socIPv4 string) error {
	nsIf := fmt.Sprintf(topo.NetnsIfaceTemplate, hostIfIndex)
	if !f.IfaceExists(nsIf, f.NetnsScope()) {
		return fmt.Errorf("interface %s not exists in netns %s: %w", nsIf, f.Netns, util.ErrNotFound)
	}

	rtSlot := rtSlotStart + hostIfIndex
	if rtSlot > rtSlotMax {
		return fmt.Errorf("kernel only supports up to %d additional routing tables: %w",
			rtSlotMax, util.ErrExhausted)
	}
	rtName := nsIf

	addr, err := util.AddrOf(socIPv4)
	if err != nil {
		return err
	}
	network, err := util.NetworkOf(socIPv4)
	if err != nil {
		return err
	}
	gateway, err := util.FirstHostAddr(socIPv4)
	if err != nil {
		return err
	}

	slots, err := f.registeredRTSlots()
	if err != nil {
		return err
	}
	if _, ok := slots[rtSlot]; !ok {
		if err := f.registerRTSlot(rtSlot, rtName); err != nil {
			return err
		}
	}

	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip rule add iif %s table %s", f.Netns, nsIf, rtName)); err != nil {
		return err
	}
	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip rule add from %s table %s", f.Netns, addr, rtName)); err != nil {
		return err
	}
	// flushing an empty table fails, which is fine here
	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip route flush table %s", f.Netns, rtName),
		shell.IgnoreErrors()); err != nil {
		return err
	}
	if _, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ip route add %s dev %s table %s",
		f.Netns, network, nsIf, rtName)); err != nil {
		return err
	}
	_, err = f.Shell.Run(fmt.Sprintf("ip netns exec %s ip route add default via %s dev %s table %s",
		f.Netns, gateway, nsIf, rtName))
	return err
}

// registeredRTSlots reads the routing table registry, skipping comments.
func (f *Fabric) registeredRTSlots() (map[int]string, error) {
	file, err := os.Open(f.RTTablesPath)
	if err != nil {
		return nil, fmt.Errorf("read routing tables: %w", err)
	}
	defer file.Close()

	slots := make(map[int]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		slot, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		slots[slot] = fields[1]
	}
	return slots, scanner.Err()
}

func (f *Fabric) registerRTSlot(slot int, name string) error {
	file, err := os.OpenFile(f.RTTablesPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("register routing table %d: %w", slot, err)
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "%d\t%s\n", slot, name); err != nil {
		return fmt.Errorf("register routing table %d: %w", slot, err)
	}
	return nil
}
