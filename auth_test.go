package ipconnection

import (
	"crypto/hmac"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateHandshake(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	const secret = "My Authentication Secret!"
	serverNonce := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		nonceReq, _ := readFrame(t, conn)
		require.EqualValues(t, authUID, nonceReq.UID)
		require.EqualValues(t, fnGetAuthNonce, nonceReq.FunctionID)
		writeFrameTo(t, conn, HeaderWithPayload(authUID, fnGetAuthNonce, nonceReq.SequenceNumber, false, 4), serverNonce)

		authReq, authPayload := readFrame(t, conn)
		require.EqualValues(t, fnAuthenticate, authReq.FunctionID)
		require.Len(t, authPayload, authPayloadLength)

		clientNonce := authPayload[:nonceSize]
		gotDigest := authPayload[nonceSize:]

		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(serverNonce)
		mac.Write(clientNonce)
		wantDigest := mac.Sum(nil)
		require.True(t, hmac.Equal(wantDigest, gotDigest))

		writeFrameTo(t, conn, HeaderWithPayload(authUID, fnAuthenticate, authReq.SequenceNumber, false, 0), nil)
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	recv, err := c.Authenticate(secret)
	require.NoError(t, err)

	_, recvErr, ok := recv.Recv()
	require.True(t, ok, recvErr)
}

func TestAuthenticateRejectedSecretObservesQueueDisconnected(t *testing.T) {
	ln, host, port := startMockListener(t)
	defer ln.Close()

	serverNonce := []byte{0xAA, 0xBB, 0xCC, 0xDD}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		nonceReq, _ := readFrame(t, conn)
		writeFrameTo(t, conn, HeaderWithPayload(authUID, fnGetAuthNonce, nonceReq.SequenceNumber, false, 4), serverNonce)

		// The daemon rejects an empty secret by reading the Authenticate
		// frame and hanging up without ever answering it.
		readFrame(t, conn)
	}()

	c := newTestConnection()
	defer c.Close()
	require.NoError(t, c.Connect(host, port))

	disconnects := c.RegisterDisconnectListener()

	recv, err := c.Authenticate("")
	require.NoError(t, err)

	_, recvErr, ok := recv.Recv()
	require.False(t, ok)
	require.Equal(t, RecvErrQueueDisconnected, recvErr)

	reason, ok := disconnects.Recv()
	require.True(t, ok)
	require.Equal(t, DisconnectReasonShutdown, reason)
}
