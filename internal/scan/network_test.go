package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNetworkContext(t *testing.T) {
	settings := Settings{NetworkPrefix: "10.0.0", ScanTimeoutMs: 8000}

	netCtx, err := newNetworkContext(Attachment{Type: AttachmentWiFi, IPv4: "192.168.1.42"}, true, settings)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1", netCtx.Prefix)
	assert.Equal(t, "192.168.1.42", netCtx.SelfIP)
	assert.Equal(t, 8*time.Second, netCtx.Timeout)
}

func TestNewNetworkContextErrors(t *testing.T) {
	settings := DefaultSettings()
	tests := []struct {
		name        string
		att         Attachment
		requireWiFi bool
		want        error
	}{
		{"cellular", Attachment{Type: AttachmentCellular, IPv4: "10.0.0.2"}, true, ErrNotWiFi},
		{"none", Attachment{Type: AttachmentNone}, true, ErrNotWiFi},
		{"no address", Attachment{Type: AttachmentWiFi}, true, ErrNoAddress},
		{"ipv6", Attachment{Type: AttachmentWiFi, IPv4: "fe80::1"}, true, ErrMalformedAddress},
		{"mapped", Attachment{Type: AttachmentWiFi, IPv4: "::ffff:192.168.1.2"}, true, ErrMalformedAddress},
		{"short", Attachment{Type: AttachmentWiFi, IPv4: "192.168.1"}, true, ErrMalformedAddress},
		{"garbage", Attachment{Type: AttachmentEthernet, IPv4: "a.b.c.d"}, false, ErrMalformedAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newNetworkContext(tt.att, tt.requireWiFi, settings)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewNetworkContextAnyAttachment(t *testing.T) {
	netCtx, err := newNetworkContext(Attachment{Type: AttachmentEthernet, IPv4: "172.16.5.9"}, false, DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, "172.16.5", netCtx.Prefix)
}

func TestParsePrefix(t *testing.T) {
	got, err := parsePrefix("192.168.1.")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1", got)

	for _, bad := range []string{"", "192.168", "192.168.1.1", "300.1.1", "a.b.c", "192.168.001"} {
		_, err := parsePrefix(bad)
		assert.Error(t, err, bad)
	}
}

func TestInterfaceClassify(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "eth7", "wireless"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usb0", "phy80211"), 0o755))

	c := InterfaceConnectivity{SysClassNet: root}
	assert.Equal(t, AttachmentWiFi, c.classify("eth7"))
	assert.Equal(t, AttachmentWiFi, c.classify("usb0"))
	assert.Equal(t, AttachmentWiFi, c.classify("wlan0"))
	assert.Equal(t, AttachmentWiFi, c.classify("wlp2s0"))
	assert.Equal(t, AttachmentCellular, c.classify("rmnet_data0"))
	assert.Equal(t, AttachmentCellular, c.classify("wwan0"))
	assert.Equal(t, AttachmentEthernet, c.classify("eth0"))
	assert.Equal(t, AttachmentEthernet, c.classify("enp3s0"))
}
