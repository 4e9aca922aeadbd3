package ipconnection

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

const (
	authUID           = 1
	fnGetAuthNonce    = 1
	fnAuthenticate    = 2
	nonceSize         = 4
	hmacDigestSize    = sha1.Size
	authPayloadLength = nonceSize + hmacDigestSize
)

func decodeServerNonce(b []byte) ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	if len(b) != nonceSize {
		return nonce, fmt.Errorf("server nonce had unexpected length %d", len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}

func decodeEmpty(b []byte) (struct{}, error) {
	return struct{}{}, nil
}

// randomClientNonce draws a 4-byte nonce from a chacha20 keystream freshly
// seeded from the operating system's CSPRNG, the Go translation of the
// source's ChaChaRng::from_entropy() draw.
func randomClientNonce() ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	var key [chacha20.KeySize]byte
	var iv [chacha20.NonceSize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nonce, err
	}
	if _, err := rand.Read(iv[:]); err != nil {
		return nonce, err
	}
	cipher, err := chacha20.NewUnauthenticatedCipher(key[:], iv[:])
	if err != nil {
		return nonce, err
	}
	cipher.XORKeyStream(nonce[:], nonce[:])
	return nonce, nil
}

// Authenticate runs the HMAC-SHA1 challenge/response handshake a brick
// daemon requires before it accepts any further requests: fetch the
// daemon's nonce, combine it with a freshly drawn client nonce under an
// HMAC keyed by secret, and send the result back. The returned Receiver
// resolves once the daemon accepts (or rejects) the handshake.
func (c *Connection) Authenticate(secret string) (*Receiver[struct{}], error) {
	nonceSink := make(chan responseResult, 1)
	nonceAck := make(ackChan, 1)
	c.send(getReq{uid: authUID, fn: fnGetAuthNonce, responseSink: nonceSink, ack: nonceAck})
	nonceTimeout := <-nonceAck

	nonceRecv := newReceiver(nonceSink, decodeServerNonce, nonceTimeout)
	serverNonce, recvErr, ok := nonceRecv.Recv()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthenticate, recvErr)
	}

	clientNonce, err := randomClientNonce()
	if err != nil {
		return nil, fmt.Errorf("could not draw a client nonce: %w", err)
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(serverNonce[:])
	mac.Write(clientNonce[:])
	digest := mac.Sum(nil)

	payload := make([]byte, 0, authPayloadLength)
	payload = append(payload, clientNonce[:]...)
	payload = append(payload, digest...)

	authSink := make(chan responseResult, 1)
	authAck := make(ackChan, 1)
	c.send(setReq{uid: authUID, fn: fnAuthenticate, payload: payload, responseSink: authSink, ack: authAck})
	authTimeout := <-authAck

	return newReceiver(authSink, decodeEmpty, authTimeout), nil
}
