// Command rtpsping sends a run of reliable samples at one remote reader
// and reports how many were acknowledged, in the spirit of ping/ping.go's
// concurrent send-and-tally loop.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/katzenpost/rtps/change"
	"github.com/katzenpost/rtps/history"
	"github.com/katzenpost/rtps/internal/log"
	"github.com/katzenpost/rtps/participant"
	"github.com/katzenpost/rtps/reader"
	"github.com/katzenpost/rtps/rtpsnet"
	"github.com/katzenpost/rtps/types"
	"github.com/katzenpost/rtps/writer"
)

var (
	localPort     = flag.Int("port", 0, "local UDP port (0 picks one)")
	localPrefix   = flag.String("prefix", "0102030405060708090a0b0c", "local GuidPrefix, hex, 12 bytes")
	peerAddr      = flag.String("peer", "", "remote host:port (required)")
	peerPrefixHex = flag.String("peer-prefix", "", "remote GuidPrefix, hex, 12 bytes (required)")
	count         = flag.Int("count", 10, "number of samples to send")
	timeout       = flag.Duration("timeout", 5*time.Second, "time to wait for outstanding acknacks")
)

// pingWriterID/pingReaderID are the user entities every rtpsping instance
// publishes and listens on; two instances pointed at each other's prefixes
// will match symmetrically, each acking the other's samples.
var (
	pingWriterID = types.EntityID{Key: [3]byte{0x00, 0x00, 0x50}, Kind: types.EntityKind(0x02)}
	pingReaderID = types.EntityID{Key: [3]byte{0x00, 0x00, 0x50}, Kind: types.EntityKind(0x07)}
)

type countingListener struct{ n uint64 }

func (l *countingListener) OnDataAvailable(c *change.CacheChange) {
	atomic.AddUint64(&l.n, 1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	if *peerAddr == "" || *peerPrefixHex == "" {
		flag.Usage()
		os.Exit(2)
	}

	var prefix types.GuidPrefix
	if err := decodeHexPrefix(*localPrefix, prefix[:]); err != nil {
		fatalf("bad -prefix: %v", err)
	}
	var peerPrefix types.GuidPrefix
	if err := decodeHexPrefix(*peerPrefixHex, peerPrefix[:]); err != nil {
		fatalf("bad -peer-prefix: %v", err)
	}

	udp, err := rtpsnet.NewUDPTransport(*localPort)
	if err != nil {
		fatalf("listen: %v", err)
	}
	defer udp.Close()

	logger := log.New("rtpsping")
	p := participant.New(participant.Config{GuidPrefix: prefix, Domain: participant.NewDomain(0, 0)}, udp, logger)
	p.Start()
	defer p.Stop()

	udp.SetHandler(func(data []byte) {
		if err := p.Receiver().ProcessDatagram(data); err != nil {
			logger.Warningf("dropped datagram: %v", err)
		}
	})
	go udp.Listen()

	peerLoc, err := resolveLocator(*peerAddr)
	if err != nil {
		fatalf("resolve peer: %v", err)
	}

	sw := p.CreateWriter(pingWriterID, writer.Config{
		Reliability:    types.ReliabilityReliable,
		PublishMode:    types.PublishModeSync,
		HistoryPolicy:  history.Policy{Kind: types.HistoryKeepAll},
		MemoryPolicy:   change.MemoryPolicyDynamic,
		PayloadMaxSize: 64,
		PoolInitial:    *count + 1,
		PoolMax:        *count + 1,
		HeartbeatPeriod: 200 * time.Millisecond,
	}, types.LivelinessAutomatic, 0)

	var recv countingListener
	sr := p.CreateReader(pingReaderID, reader.Config{
		Reliability:    types.ReliabilityReliable,
		HistoryPolicy:  history.Policy{Kind: types.HistoryKeepLast, Depth: 1},
		MemoryPolicy:   change.MemoryPolicyDynamic,
		PayloadMaxSize: 64,
		PoolInitial:    4,
		PoolMax:        16,
	}, &recv)
	peerWriterGUID := types.GUID{Prefix: peerPrefix, Entity: pingWriterID}
	sr.MatchedWriterAdd(reader.WriterProxyParams{
		RemoteWriterGUID: peerWriterGUID,
		UnicastLocators:  []types.Locator{peerLoc},
	})

	peerReaderGUID := types.GUID{Prefix: peerPrefix, Entity: pingReaderID}
	rp := sw.MatchedReaderAdd(writer.ReaderProxyParams{
		RemoteReaderGUID: peerReaderGUID,
		UnicastLocators:  []types.Locator{peerLoc},
		Reliability:      types.ReliabilityReliable,
	})

	fmt.Printf("Sending %d samples to %s@%s\n", *count, peerReaderGUID, *peerAddr)

	var sent uint64
	for i := 0; i < *count; i++ {
		var handle types.InstanceHandle
		handle[0] = byte(i)
		payload := make([]byte, types.InstanceHandleLength)
		copy(payload, handle[:])
		cc, err := sw.NewChange(types.ChangeKindAlive, handle, payload)
		if err != nil {
			fmt.Printf("~")
			continue
		}
		if err := sw.AddChange(cc); err != nil {
			fmt.Printf("~")
			continue
		}
		atomic.AddUint64(&sent, 1)
		fmt.Printf(".")
	}
	fmt.Printf("\n")

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		if len(rp.UnackedChanges()) == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	acked := int(sent) - len(rp.UnackedChanges())
	percent := float64(0)
	if sent > 0 {
		percent = float64(acked) * 100 / float64(sent)
	}
	fmt.Printf("Acknowledged %d/%d (%.1f%%)\n", acked, sent, percent)
	fmt.Printf("Received %d samples from peer\n", atomic.LoadUint64(&recv.n))
}

func decodeHexPrefix(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("need %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func resolveLocator(hostport string) (types.Locator, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return types.Locator{}, err
	}
	return types.LocatorFromUDPAddr(addr), nil
}
