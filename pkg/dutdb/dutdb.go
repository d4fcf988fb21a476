// Package dutdb discovers a SONiC DUT's front-panel port map live from its
// CONFIG_DB, for hosts files that omit the per-DUT port list. The DUT's
// redis is reached through an SSH port-forward tunnel.
package dutdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/testbed-tools/vmtopo/pkg/util"
)

// configDBIndex is the redis database number of CONFIG_DB.
const configDBIndex = 4

// Credentials hold the SSH login of a DUT, parsed from "user:pass@host".
type Credentials struct {
	User string
	Pass string
	Host string
}

// ParseCredentials splits a "user:pass@host" flag value.
func ParseCredentials(s string) (Credentials, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return Credentials{}, fmt.Errorf("%w: dut ssh spec %q, want user:pass@host", util.ErrInvalidConfig, s)
	}
	userPass, host := s[:at], s[at+1:]
	colon := strings.Index(userPass, ":")
	if colon < 0 || host == "" {
		return Credentials{}, fmt.Errorf("%w: dut ssh spec %q, want user:pass@host", util.ErrInvalidConfig, s)
	}
	return Credentials{
		User: userPass[:colon],
		Pass: userPass[colon+1:],
		Host: host,
	}, nil
}

// portEntry is one CONFIG_DB PORT row, reduced to the fields that order
// front-panel ports.
type portEntry struct {
	name  string
	index int
}

// FrontPanelPorts reads the DUT's CONFIG_DB PORT table and returns the
// vlan-index keyed port map the topology binder consumes: "0" maps to the
// first front-panel port, "1" to the second, and so on.
func FrontPanelPorts(ctx context.Context, creds Credentials) (map[string]string, error) {
	tunnel, err := NewTunnel(creds.Host, creds.User, creds.Pass)
	if err != nil {
		return nil, err
	}
	defer tunnel.Close()

	client := redis.NewClient(&redis.Options{
		Addr: tunnel.LocalAddr(),
		DB:   configDBIndex,
	})
	defer client.Close()

	keys, err := client.Keys(ctx, "PORT|*").Result()
	if err != nil {
		return nil, fmt.Errorf("CONFIG_DB keys on %s: %w", creds.Host, err)
	}

	entries := make([]portEntry, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, "PORT|")
		vals, err := client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("CONFIG_DB read %s on %s: %w", key, creds.Host, err)
		}
		entries = append(entries, portEntry{name: name, index: portSortKey(name, vals)})
	}

	return portMapOf(entries), nil
}

// portSortKey orders ports by their CONFIG_DB index when present, falling
// back to the number embedded in the port name ("Ethernet16" -> 16).
func portSortKey(name string, vals map[string]string) int {
	if idx, err := strconv.Atoi(vals["index"]); err == nil {
		return idx
	}
	digits := strings.TrimLeftFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if n, err := strconv.Atoi(digits); err == nil {
		return n
	}
	return 0
}

// portMapOf assigns consecutive vlan indices to the sorted port list.
func portMapOf(entries []portEntry) map[string]string {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].index != entries[j].index {
			return entries[i].index < entries[j].index
		}
		return entries[i].name < entries[j].name
	})
	ports := make(map[string]string, len(entries))
	for i, e := range entries {
		ports[strconv.Itoa(i)] = e.name
	}
	return ports
}
