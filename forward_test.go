package adb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseForwardSpec(t *testing.T) {
	for _, s := range []string{"tcp:8080", "jdwp:1234", "localabstract:scrcpy", "local:/tmp/sock"} {
		f, err := ParseForwardSpec(s)
		assert.NoError(t, err, s)
		assert.Equal(t, ForwardSpec(s), f)
	}
	for _, s := range []string{"tcp:", "tcp:abc", "udp:53", "8080"} {
		_, err := ParseForwardSpec(s)
		assert.Error(t, err, s)
	}
	assert.Equal(t, 8080, TCPForwardSpec(8080).Port())
	assert.Equal(t, -1, ForwardSpec("localabstract:x").Port())
	assert.Equal(t, FProtocolAbstract, ForwardSpec("localabstract:x").Protocol())
}

func TestCreateForward(t *testing.T) {
	client, srv, _ := newMockClient(t, func(s *mockServerConn) {
		s.readRequest()
		s.okay()
	})

	d := client.Device("abc")
	require.NoError(t, d.CreateForward(TCPForwardSpec(6100), "tcp:7100", false))
	require.NoError(t, d.CreateForward(TCPForwardSpec(6100), "localabstract:x", true))
	require.NoError(t, d.RemoveForward(TCPForwardSpec(6100)))
	require.NoError(t, d.RemoveAllForwards())
	assert.Equal(t, []string{
		"host-serial:abc:forward:norebind:tcp:6100;tcp:7100",
		"host-serial:abc:forward:tcp:6100;localabstract:x",
		"host-serial:abc:killforward:tcp:6100",
		"host-serial:abc:killforward-all",
	}, srv.Requests())
}

func TestCreateForwardCannotRebind(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		s.readRequest()
		s.fail("cannot rebind existing socket")
	})

	err := client.Device("abc").CreateForward("tcp:6100", "tcp:7100", false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot rebind")
}

const forwardList = "abc tcp:6100 tcp:7100\nxyz tcp:6200 localabstract:x\n"

func TestListForward(t *testing.T) {
	client, _, _ := newMockClient(t, func(s *mockServerConn) {
		req := s.readRequest()
		if req != "host-serial:abc:list-forward" && req != "host:list-forward" {
			s.fail("unexpected " + req)
			return
		}
		s.okay()
		s.sendString(forwardList)
	})

	fws, err := client.Device("abc").ListForward()
	require.NoError(t, err)
	assert.Equal(t, []ForwardData{{"abc", "tcp:6100", "tcp:7100"}}, fws)

	all, err := client.ListForwards()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestForwardToFreePortExisting(t *testing.T) {
	client, srv, _ := newMockClient(t, func(s *mockServerConn) {
		if s.expect("host-serial:abc:list-forward") {
			s.sendString(forwardList)
		}
	})

	port, err := client.Device("abc").ForwardToFreePort("tcp:7100")
	require.NoError(t, err)
	assert.Equal(t, 6100, port)
	assert.Len(t, srv.Requests(), 1)
}

func TestForwardToFreePortNew(t *testing.T) {
	client, srv, _ := newMockClient(t, func(s *mockServerConn) {
		req := s.readRequest()
		s.okay()
		if req == "host-serial:abc:list-forward" {
			s.sendString("")
		}
	})

	port, err := client.Device("abc").ForwardToFreePort("localabstract:scrcpy")
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "host-serial:abc:forward:norebind:"+string(TCPForwardSpec(port))+";localabstract:scrcpy", reqs[1])
}
