package mtproto

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/dcs"
)

var errMalformed = errors.New("malformed session string")

// stringFormat converts between an authorized session and the string session
// representation of one client library family.
type stringFormat interface {
	encode(c credential) (string, error)
	decode(s string, list dcs.List) (credential, error)
}

type pyrogramFormat struct{}

func (pyrogramFormat) encode(c credential) (string, error) {
	if c.DC <= 0 || c.DC > 255 {
		return "", fmt.Errorf("pyrogram: dc %d out of range", c.DC)
	}
	buf := make([]byte, 0, pyrogramLen)
	buf = append(buf, byte(c.DC))
	buf = binary.BigEndian.AppendUint32(buf, uint32(c.APIID))
	buf = append(buf, boolByte(c.Test))
	buf = append(buf, c.AuthKey[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(c.UserID))
	buf = append(buf, boolByte(c.Bot))
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (pyrogramFormat) decode(s string, list dcs.List) (credential, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(s), "="))
	if err != nil {
		return credential{}, fmt.Errorf("pyrogram: %w: %v", errMalformed, err)
	}
	if len(raw) != pyrogramLen {
		return credential{}, fmt.Errorf("pyrogram: %w: %d bytes", errMalformed, len(raw))
	}
	var c credential
	c.DC = int(raw[0])
	c.APIID = int(binary.BigEndian.Uint32(raw[1:5]))
	c.Test = raw[5] != 0
	copy(c.AuthKey[:], raw[6:262])
	c.UserID = int64(binary.BigEndian.Uint64(raw[262:270]))
	c.Bot = raw[270] != 0

	// Pyrogram only stores the DC number; the address comes from the DC list.
	addr, ok := dcAddr(list, c.DC)
	if !ok {
		return credential{}, fmt.Errorf("pyrogram: unknown dc %d", c.DC)
	}
	c.Addr = addr
	return c, nil
}

type telethonFormat struct{}

func (telethonFormat) encode(c credential) (string, error) {
	if c.DC <= 0 || c.DC > 255 {
		return "", fmt.Errorf("telethon: dc %d out of range", c.DC)
	}
	host, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return "", fmt.Errorf("telethon: address %q: %w", c.Addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", fmt.Errorf("telethon: port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("telethon: address %q is not an IP", host)
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	buf := make([]byte, 0, telethonLenIPv6)
	buf = append(buf, byte(c.DC))
	buf = append(buf, ip...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(port))
	buf = append(buf, c.AuthKey[:]...)
	return telethonVersion + base64.URLEncoding.EncodeToString(buf), nil
}

func (telethonFormat) decode(s string, _ dcs.List) (credential, error) {
	data, err := session.TelethonSession(strings.TrimSpace(s))
	if err != nil {
		return credential{}, fmt.Errorf("telethon: %w: %v", errMalformed, err)
	}
	return credentialFromData(data)
}

func dcAddr(list dcs.List, dc int) (string, bool) {
	for _, opt := range list.Options {
		if opt.ID != dc || opt.Ipv6 || opt.MediaOnly || opt.CDN || opt.TCPObfuscatedOnly {
			continue
		}
		return net.JoinHostPort(opt.IPAddress, strconv.Itoa(opt.Port)), true
	}
	return "", false
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
