package ipconnection

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
)

// readBufferFrames is how many max-size frames the rolling read buffer is
// sized to hold, mirroring the Rust source's "keep buffer for 100 packets".
const readBufferFrames = 100

const readBufferSize = MaxPacketSize * readBufferFrames

// socketReadTimeout is the deadline re-armed before every Read call, the Go
// equivalent of the 5-second read timeout set once on the Rust TcpStream.
const socketReadTimeout = 5 * time.Second

// runSessionReader owns the read half of conn for one session. It never
// touches the write half, never interprets payloads, and never mutates
// dispatch tables directly -- it only ever pushes decoded frames (or a
// closed notification) onto out, for the socket worker to act on.
func runSessionReader(conn net.Conn, out chan<- workerRequest, sessionID uint64, log zerolog.Logger) {
	readBuf := make([]byte, readBufferSize)
	level := 0
	packetBuf := make([]byte, 0, MaxPacketSize)
	pending := 0

	for {
		if readBufferSize-level > MaxPacketSize {
			_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
			n, err := conn.Read(readBuf[level:readBufferSize])
			switch {
			case err == nil:
				level += n
			case errors.Is(err, io.EOF):
				log.Debug().Uint64("session_id", sessionID).Msg("peer closed the connection")
				out <- socketClosedReq{sessionID: sessionID, graceful: true}
				return
			default:
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				log.Warn().Uint64("session_id", sessionID).Err(err).Msg("socket read failed")
				out <- socketClosedReq{sessionID: sessionID, graceful: false}
				return
			}
		}

		for {
			if len(packetBuf) == 0 && level < HeaderSize {
				break
			}

			if len(packetBuf) == 0 {
				packetBuf = append(packetBuf, readBuf[:HeaderSize]...)
				level = consumeFront(readBuf, level, HeaderSize)
				h := DecodeHeader(packetBuf)
				pending = int(h.Length) - HeaderSize
			}

			if pending > 0 && level > 0 {
				toRead := pending
				if level < toRead {
					toRead = level
				}
				packetBuf = append(packetBuf, readBuf[:toRead]...)
				level = consumeFront(readBuf, level, toRead)
				pending -= toRead
			}

			if pending == 0 {
				h := DecodeHeader(packetBuf)
				payload := make([]byte, len(packetBuf)-HeaderSize)
				copy(payload, packetBuf[HeaderSize:])
				out <- responseReq{header: h, payload: payload}
				packetBuf = packetBuf[:0]
			} else {
				break
			}
		}
	}
}

// consumeFront shifts the first n bytes out of buf[:level] and returns the
// new level, the Go analogue of the source's Vec::drain-based
// read_into_packet_buffer helper.
func consumeFront(buf []byte, level, n int) int {
	copy(buf, buf[n:level])
	return level - n
}
