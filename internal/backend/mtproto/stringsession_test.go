package mtproto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/telegram/dcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() crypto.Key {
	var k crypto.Key
	for i := range k {
		k[i] = byte(255 - i)
	}
	return k
}

func TestPyrogramFormat_RoundTrip(t *testing.T) {
	in := credential{DC: 2, AuthKey: testKey(), APIID: 12345, UserID: 987654321}

	s, err := pyrogramFormat{}.encode(in)
	require.NoError(t, err)
	assert.False(t, strings.Contains(s, "="), "pyrogram strings carry no padding")

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, pyrogramLen)

	out, err := pyrogramFormat{}.decode(s, dcs.Prod())
	require.NoError(t, err)
	assert.Equal(t, in.DC, out.DC)
	assert.Equal(t, in.APIID, out.APIID)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.AuthKey, out.AuthKey)
	assert.False(t, out.Test)
	assert.NotEmpty(t, out.Addr, "address resolved from the dc list")
}

func TestPyrogramFormat_Rejects(t *testing.T) {
	_, err := pyrogramFormat{}.decode("!!!", dcs.Prod())
	assert.ErrorIs(t, err, errMalformed)

	_, err = pyrogramFormat{}.decode(base64.RawURLEncoding.EncodeToString([]byte("short")), dcs.Prod())
	assert.ErrorIs(t, err, errMalformed)

	_, err = pyrogramFormat{}.encode(credential{DC: 0})
	assert.Error(t, err)

	s, err := pyrogramFormat{}.encode(credential{DC: 200, AuthKey: testKey()})
	require.NoError(t, err)
	_, err = pyrogramFormat{}.decode(s, dcs.Prod())
	assert.Error(t, err, "unknown dc")
}

func TestTelethonFormat_RoundTrip(t *testing.T) {
	in := credential{DC: 4, Addr: "149.154.167.91:443", AuthKey: testKey()}

	s, err := telethonFormat{}.encode(in)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(s, telethonVersion))

	raw, err := base64.URLEncoding.DecodeString(s[1:])
	require.NoError(t, err)
	assert.Len(t, raw, telethonLenIPv4)

	out, err := telethonFormat{}.decode(s, dcs.List{})
	require.NoError(t, err)
	assert.Equal(t, in.DC, out.DC)
	assert.Equal(t, in.Addr, out.Addr)
	assert.Equal(t, in.AuthKey, out.AuthKey)
}

func TestTelethonFormat_IPv6(t *testing.T) {
	in := credential{DC: 2, Addr: "[2001:67c:4e8:f002::a]:443", AuthKey: testKey()}

	s, err := telethonFormat{}.encode(in)
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(s[1:])
	require.NoError(t, err)
	assert.Len(t, raw, telethonLenIPv6)
}

func TestTelethonFormat_Rejects(t *testing.T) {
	_, err := telethonFormat{}.encode(credential{DC: 2, Addr: "no-port", AuthKey: testKey()})
	assert.Error(t, err)

	_, err = telethonFormat{}.encode(credential{DC: 2, Addr: "example.org:443", AuthKey: testKey()})
	assert.Error(t, err)

	_, err = telethonFormat{}.decode("1garbage", dcs.List{})
	assert.ErrorIs(t, err, errMalformed)
}

func TestCredential_Data(t *testing.T) {
	in := credential{DC: 2, Addr: fakeAddr, AuthKey: testKey()}
	d := in.data()

	id := in.AuthKey.ID()
	assert.Equal(t, id[:], d.AuthKeyID)

	out, err := credentialFromData(d)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	d.AuthKey = d.AuthKey[:10]
	_, err = credentialFromData(d)
	assert.Error(t, err)
}
