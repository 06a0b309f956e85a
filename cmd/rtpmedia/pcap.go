package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/zsiec/rtpmedia/rtpcodec"
)

const snapLen = 65536

type captureSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// openCapture reads r as pcapng, falling back to classic pcap.
func openCapture(r io.ReadSeeker) (captureSource, error) {
	ng, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err == nil {
		return ng, nil
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, serr
	}
	pr, perr := pcapgo.NewReader(r)
	if perr != nil {
		return nil, fmt.Errorf("not a pcap or pcapng capture: %w", perr)
	}
	return pr, nil
}

// pcapWriter frames RTP packets as Ethernet/IPv4/UDP and writes them to a
// classic pcap file. Capture times follow the packet timestamps.
type pcapWriter struct {
	w        *pcapgo.Writer
	src, dst *net.UDPAddr
	base     time.Time
	ipID     uint16
	written  int
}

func newPcapWriter(out io.Writer, src, dst *net.UDPAddr, base time.Time) (*pcapWriter, error) {
	if src.IP.To4() == nil || dst.IP.To4() == nil {
		return nil, fmt.Errorf("only IPv4 addresses are supported: %s -> %s", src, dst)
	}
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	return &pcapWriter{w: w, src: src, dst: dst, base: base}, nil
}

func (p *pcapWriter) write(pkt *rtpcodec.Packet) error {
	raw, err := pkt.Packet.Marshal()
	if err != nil {
		return err
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	p.ipID++
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       p.ipID,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    p.src.IP.To4(),
		DstIP:    p.dst.IP.To4(),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(p.src.Port),
		DstPort: layers.UDPPort(p.dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(raw)); err != nil {
		return err
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     p.base.Add(time.Duration(pkt.StampMS) * time.Millisecond),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := p.w.WritePacket(ci, data); err != nil {
		return err
	}
	p.written++
	return nil
}
