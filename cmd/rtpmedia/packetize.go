package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/rtpcodec"
	"github.com/zsiec/rtpmedia/track"
)

type packetizeOptions struct {
	input, output string
	codec         media.CodecID
	fps           float64
	mtu           int
	lowLatency    bool
	ssrc          uint32
	payloadType   uint8
	src, dst      *net.UDPAddr
}

func packetizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "packetize",
		Usage:     "packetize an Annex B or ADTS elementary stream into an RTP pcap",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "elementary stream file"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "pcap file to write"},
			&cli.StringFlag{Name: "codec", Aliases: []string{"c"}, Usage: "h264, h265 or aac (default: from the file extension)"},
			&cli.Float64Flag{Name: "fps", Value: 25, Usage: "video frame rate"},
			&cli.IntFlag{Name: "mtu", Value: rtpcodec.DefaultMTU, Usage: "maximum RTP payload size"},
			&cli.BoolFlag{Name: "low-latency", Usage: "set the marker bit on every NAL unit"},
			&cli.UintFlag{Name: "ssrc", Value: 0x52544D31, Usage: "RTP SSRC"},
			&cli.UintFlag{Name: "pt", Usage: "RTP payload type (default: 96 video, 98 audio)"},
			&cli.StringFlag{Name: "src", Value: "127.0.0.1:5000", Usage: "UDP source address"},
			&cli.StringFlag{Name: "dst", Value: "127.0.0.1:5004", Usage: "UDP destination address"},
		},
		Action: func(c *cli.Context) error {
			opts := packetizeOptions{
				input:       c.String("input"),
				output:      c.String("output"),
				fps:         c.Float64("fps"),
				mtu:         c.Int("mtu"),
				lowLatency:  c.Bool("low-latency"),
				ssrc:        uint32(c.Uint("ssrc")),
				payloadType: uint8(c.Uint("pt")),
			}
			var err error
			if name := c.String("codec"); name != "" {
				opts.codec, err = parseCodec(name)
			} else {
				opts.codec, err = codecFromPath(opts.input)
			}
			if err != nil {
				return err
			}
			if opts.src, err = net.ResolveUDPAddr("udp4", c.String("src")); err != nil {
				return fmt.Errorf("--src: %w", err)
			}
			if opts.dst, err = net.ResolveUDPAddr("udp4", c.String("dst")); err != nil {
				return fmt.Errorf("--dst: %w", err)
			}
			return runPacketize(opts)
		},
	}
}

func runPacketize(opts packetizeOptions) error {
	log := slog.With("component", "packetize", "input", opts.input)

	data, err := os.ReadFile(opts.input)
	if err != nil {
		return err
	}
	frames, err := readES(data, opts.codec, opts.fps)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.input, err)
	}

	tr, err := track.New(opts.codec)
	if err != nil {
		return err
	}
	pt := opts.payloadType
	if pt == 0 {
		pt = track.PayloadType(tr)
	}
	clockRate := uint32(90000)
	if opts.codec == media.CodecAAC {
		hdr, err := aac.ParseADTSHeader(frames[0].Data())
		if err != nil {
			return err
		}
		clockRate = uint32(hdr.SampleRate())
	}

	out, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)

	pw, err := newPcapWriter(bw, opts.src, opts.dst, time.Now().Truncate(time.Second))
	if err != nil {
		return err
	}
	var writeErr error
	sink := func(pkt *rtpcodec.Packet, _ bool) {
		if writeErr == nil {
			writeErr = pw.write(pkt)
		}
	}

	factory := rtpcodec.NewPacketFactory(opts.ssrc, pt, clockRate, nil)
	pk, err := rtpcodec.NewPacketizer(opts.codec, factory, sink, rtpcodec.Config{
		MTU:        opts.mtu,
		LowLatency: opts.lowLatency,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	// the track inserts parameter sets ahead of keyframes that lack them
	tr.AddConsumer(pk.InputFrame)
	for _, f := range frames {
		tr.InputFrame(f)
	}
	pk.Flush()

	if writeErr != nil {
		return writeErr
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	log.Info("packetized", "codec", opts.codec, "frames", len(frames), "packets", pw.written, "output", opts.output)
	return out.Close()
}
