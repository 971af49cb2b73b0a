package scan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	srvsvc "github.com/oiweiwei/go-msrpc/msrpc/srvs/srvsvc/v3"
	wkssvc "github.com/oiweiwei/go-msrpc/msrpc/wkst/wkssvc/v1"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/gssapi"
)

const (
	smbPort = 445

	smbPipeWKSSVC = "wkssvc"
	smbPipeSRVSVC = "srvsvc"

	defaultSMBTimeout = 3 * time.Second
)

// NameLookup resolves the name a single host announces for itself.
type NameLookup interface {
	// Applies reports whether the lookup can say anything about a host with
	// these open ports.
	Applies(openPorts PortSet) bool
	LookupName(ctx context.Context, host string) (string, bool)
}

// SMBNamer asks Windows and Samba hosts for their computer name over an
// anonymous DCE/RPC session: the workstation service first, then the server
// service.
type SMBNamer struct {
	Timeout time.Duration
}

// Applies implements NameLookup.
func (SMBNamer) Applies(openPorts PortSet) bool {
	return openPorts.Contains(smbPort)
}

// LookupName implements NameLookup.
func (n SMBNamer) LookupName(ctx context.Context, host string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	for _, q := range []struct {
		pipe  string
		fetch smbQueryFunc
	}{
		{smbPipeWKSSVC, fetchWorkstationName},
		{smbPipeSRVSVC, fetchServerName},
	} {
		if name, err := n.query(ctx, host, q.pipe, q.fetch); err == nil {
			return name, true
		}
	}
	return "", false
}

type smbQueryFunc func(context.Context, dcerpc.Conn) (string, error)

func (n SMBNamer) query(parent context.Context, host, pipe string, fetch smbQueryFunc) (string, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultSMBTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout+time.Second)
	defer cancel()

	secCtx := gssapi.NewSecurityContext(ctx,
		gssapi.WithCredential(credential.Anonymous()),
		gssapi.WithMechanismFactory(ssp.NTLM),
		gssapi.WithMechanismFactory(ssp.SPNEGO),
	)
	conn, err := dcerpc.Dial(secCtx, host,
		dcerpc.WithEndpoint("ncacn_np:["+pipe+"]"),
		dcerpc.WithTimeout(timeout),
		dcerpc.WithSMBPort(smbPort),
	)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = conn.Close(secCtx)
	}()

	name, err := fetch(secCtx, conn)
	if err != nil {
		return "", err
	}
	if name = cleanSMBName(name); name == "" {
		return "", errors.New("empty computer name")
	}
	return name, nil
}

func fetchWorkstationName(ctx context.Context, conn dcerpc.Conn) (string, error) {
	client, err := wkssvc.NewWkssvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", err
	}
	resp, err := client.GetInfo(ctx, &wkssvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", err
	}
	if resp.WorkstationInfo == nil {
		return "", errors.New("wkssvc: missing workstation info")
	}
	data, ok := resp.WorkstationInfo.GetValue().(*wkssvc.WorkstationInfo100)
	if !ok || data == nil {
		return "", errors.New("wkssvc: unexpected info type")
	}
	return data.ComputerName, nil
}

func fetchServerName(ctx context.Context, conn dcerpc.Conn) (string, error) {
	client, err := srvsvc.NewSrvsvcClient(ctx, conn, dcerpc.WithInsecure())
	if err != nil {
		return "", err
	}
	resp, err := client.GetInfo(ctx, &srvsvc.GetInfoRequest{Level: 100})
	if err != nil {
		return "", err
	}
	if resp.Info == nil {
		return "", errors.New("srvsvc: missing server info")
	}
	data, ok := resp.Info.GetValue().(*dtyp.ServerInfo100)
	if !ok || data == nil {
		return "", errors.New("srvsvc: unexpected info type")
	}
	return data.Name, nil
}

func cleanSMBName(value string) string {
	return strings.TrimSpace(strings.Trim(value, "\x00"))
}
