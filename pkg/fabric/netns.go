package fabric

import (
	"fmt"
	"os"
)

// AddNetns recreates the vm set's network namespace from scratch.
func (f *Fabric) AddNetns() error {
	if err := f.DeleteNetns(); err != nil {
		return err
	}
	_, err := f.Shell.Run(fmt.Sprintf("ip netns add %s", f.Netns))
	return err
}

// DeleteNetns removes the namespace if it exists.
func (f *Fabric) DeleteNetns() error {
	if _, err := os.Stat("/var/run/netns/" + f.Netns); err != nil {
		return nil
	}
	_, err := f.Shell.Run(fmt.Sprintf("ip netns delete %s", f.Netns))
	return err
}

// EnableNetnsArpFilter restricts ARP replies to the interface owning the
// address, needed when several netns ports share a subnet.
func (f *Fabric) EnableNetnsArpFilter() error {
	_, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s sysctl -w net.ipv4.conf.all.arp_filter=1", f.Netns))
	return err
}

// EnableNetnsLoopback brings the namespace's loopback device up.
func (f *Fabric) EnableNetnsLoopback() error {
	_, err := f.Shell.Run(fmt.Sprintf("ip netns exec %s ifconfig lo up", f.Netns))
	return err
}
