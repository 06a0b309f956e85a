package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pion/rtp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/rtpmedia/codec/aac"
	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/pipeline"
	"github.com/zsiec/rtpmedia/stream"
	"github.com/zsiec/rtpmedia/track"
)

const packetQueueSize = 1024

type extractOptions struct {
	input     string
	outputDir string
	port      int
	// codecs maps payload types to codecs; key -1 is the fallback
	codecs    map[int]media.CodecID
	clockRate uint32
	aacConfig []byte
	captions  bool
	donl      bool

	// lengthPrefixed writes video access units with 4-byte NAL lengths
	lengthPrefixed bool
}

// mergeMode picks how the frames of one access unit are joined on disk.
func (o extractOptions) mergeMode(codec media.CodecID) media.MergeMode {
	if codec.TrackType() == media.TrackVideo {
		if o.lengthPrefixed {
			return media.MergeLengthPrefixed
		}
		return media.MergeAnnexB
	}
	return media.MergePassThrough
}

func (o extractOptions) codecFor(pt uint8) (media.CodecID, bool) {
	if c, ok := o.codecs[int(pt)]; ok {
		return c, true
	}
	c, ok := o.codecs[-1]
	return c, ok
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "depacketize the RTP streams of a pcap/pcapng capture into elementary streams",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "pcap or pcapng capture"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Value: ".", Usage: "directory for the extracted streams"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "only UDP packets to this destination port"},
			&cli.StringSliceFlag{
				Name:    "codec",
				Aliases: []string{"c"},
				Value:   cli.NewStringSlice("h264"),
				Usage:   "codec of all streams, or PT=codec for one payload type (repeatable)",
			},
			&cli.UintFlag{Name: "clock-rate", Usage: "RTP clock rate (default: 90000 video, sample rate audio)"},
			&cli.StringFlag{Name: "aac-config", Usage: "AudioSpecificConfig as hex, e.g. 1210"},
			&cli.BoolFlag{Name: "captions", Usage: "log CEA-608/708 captions found in video streams"},
			&cli.BoolFlag{Name: "donl", Usage: "H.265 streams carry DONL fields"},
			&cli.BoolFlag{Name: "length-prefixed", Usage: "write video NAL units with 4-byte lengths instead of start codes"},
		},
		Action: func(c *cli.Context) error {
			opts := extractOptions{
				input:     c.String("input"),
				outputDir: c.String("output-dir"),
				port:      c.Int("port"),
				clockRate: uint32(c.Uint("clock-rate")),
				captions:  c.Bool("captions"),
				donl:      c.Bool("donl"),

				lengthPrefixed: c.Bool("length-prefixed"),
			}
			var err error
			if opts.codecs, err = parseCodecMap(c.StringSlice("codec")); err != nil {
				return err
			}
			if hex := c.String("aac-config"); hex != "" {
				if opts.aacConfig, err = aac.ParseConfigHex(hex); err != nil {
					return fmt.Errorf("--aac-config: %w", err)
				}
			}
			return runExtract(c.Context, opts, os.Stdout)
		},
	}
}

// parseCodecMap parses "codec" and "PT=codec" entries.
func parseCodecMap(entries []string) (map[int]media.CodecID, error) {
	m := make(map[int]media.CodecID, len(entries))
	for _, e := range entries {
		key := -1
		name := e
		if pt, rest, ok := strings.Cut(e, "="); ok {
			n, err := strconv.Atoi(pt)
			if err != nil || n < 0 || n > 127 {
				return nil, fmt.Errorf("invalid payload type in %q", e)
			}
			key, name = n, rest
		}
		codec, err := parseCodec(name)
		if err != nil {
			return nil, err
		}
		m[key] = codec
	}
	return m, nil
}

// output is one depacketized stream and its elementary stream file.
type output struct {
	stream   *stream.Stream
	pipeline *pipeline.Pipeline
	packets  chan *rtp.Packet
	path     string
	file     *os.File
	w        *bufio.Writer
	merger   *media.FrameMerger
	units    int
	err      error
}

func (o *output) write(f *media.Frame) bool {
	if o.err != nil {
		return false
	}
	o.merger.Input(f, o.writeUnit)
	return o.err == nil
}

func (o *output) writeUnit(_, _ int64, buf []byte, _ bool) {
	if o.err != nil {
		return
	}
	o.units++
	_, o.err = o.w.Write(buf)
}

type extractor struct {
	opts    extractOptions
	log     *slog.Logger
	mgr     *stream.Manager
	g       *errgroup.Group
	outputs map[uint32]*output
	skipped map[uint32]bool
}

func runExtract(ctx context.Context, opts extractOptions, report io.Writer) error {
	f, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer f.Close()
	src, err := openCapture(f)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.input, err)
	}
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return err
	}

	log := slog.With("component", "extract", "input", opts.input)
	g, ctx := errgroup.WithContext(ctx)
	x := &extractor{
		opts:    opts,
		log:     log,
		mgr:     stream.NewManager(log),
		g:       g,
		outputs: make(map[uint32]*output),
		skipped: make(map[uint32]bool),
	}
	g.Go(func() error {
		defer x.closeInputs()
		return x.readPackets(ctx, src)
	})
	runErr := g.Wait()

	errs := []error{runErr}
	for _, s := range x.mgr.List() {
		errs = append(errs, x.finish(x.outputs[s.SSRC], report))
		x.mgr.Remove(s.Key)
	}
	return errors.Join(errs...)
}

func (x *extractor) readPackets(ctx context.Context, src captureSource) error {
	source := gopacket.NewPacketSource(src, src.LinkType())
	var total, rtpCount int
	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			x.log.Warn("capture read stopped", "error", err)
			break
		}
		total++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			continue
		}
		if x.opts.port != 0 && int(udp.DstPort) != x.opts.port {
			continue
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(udp.Payload); err != nil || pkt.Version != 2 {
			continue
		}
		// RTCP sender/receiver reports share the port under rtcp-mux
		if pkt.PayloadType >= 72 && pkt.PayloadType <= 76 {
			continue
		}

		out, err := x.output(ctx, pkt)
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		rtpCount++
		select {
		case out.packets <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	x.log.Info("capture read", "records", total, "rtp", rtpCount, "streams", len(x.outputs))
	return nil
}

// output returns the stream of pkt's SSRC, starting its pipeline on first
// use. It returns nil for payload types without a codec.
func (x *extractor) output(ctx context.Context, pkt *rtp.Packet) (*output, error) {
	if out, ok := x.outputs[pkt.SSRC]; ok {
		return out, nil
	}
	if x.skipped[pkt.SSRC] {
		return nil, nil
	}
	codec, ok := x.opts.codecFor(pkt.PayloadType)
	if !ok {
		x.log.Warn("no codec for payload type, skipping stream", "ssrc", pkt.SSRC, "pt", pkt.PayloadType)
		x.skipped[pkt.SSRC] = true
		return nil, nil
	}

	key := stream.KeyForSSRC(pkt.SSRC)
	s, created := x.mgr.Create(key, pkt.SSRC, codec)
	if !created {
		return nil, fmt.Errorf("duplicate stream %s", key)
	}
	p, err := pipeline.New(key, codec, pipeline.Config{
		ClockRate: x.opts.clockRate,
		AACConfig: x.opts.aacConfig,
		UsingDONL: x.opts.donl,
		Captions:  x.opts.captions,
		Logger:    x.log,
	})
	if err != nil {
		x.log.Warn("cannot depacketize stream, skipping", "stream", key, "codec", codec, "error", err)
		x.mgr.Remove(key)
		x.skipped[pkt.SSRC] = true
		return nil, nil
	}

	path := filepath.Join(x.opts.outputDir, key+fileExt(codec))
	file, err := os.Create(path)
	if err != nil {
		x.mgr.Remove(key)
		return nil, err
	}
	out := &output{
		stream:   s,
		pipeline: p,
		packets:  make(chan *rtp.Packet, packetQueueSize),
		path:     path,
		file:     file,
		w:        bufio.NewWriter(file),
		merger:   media.NewFrameMerger(x.opts.mergeMode(codec)),
	}
	x.outputs[pkt.SSRC] = out
	p.Track().AddConsumer(out.write)

	x.g.Go(func() error { return p.Run(ctx, out.packets) })
	if captions := p.Captions(); captions != nil {
		x.g.Go(func() error {
			for c := range captions {
				x.log.Info("caption", "stream", key, "channel", c.Channel, "pts", c.PTS, "text", c.Text)
			}
			return nil
		})
	}
	x.log.Info("stream started", "stream", key, "codec", codec, "pt", pkt.PayloadType, "output", path)
	return out, nil
}

func (x *extractor) closeInputs() {
	for _, out := range x.outputs {
		close(out.packets)
	}
}

// finish flushes the elementary stream of out and reports its telemetry
// and SDP.
func (x *extractor) finish(out *output, report io.Writer) error {
	out.merger.Flush(out.writeUnit)
	err := out.err
	if ferr := out.w.Flush(); err == nil {
		err = ferr
	}
	if cerr := out.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", out.path, err)
	}

	key := out.stream.Key
	snap, err := json.MarshalIndent(out.pipeline.Stats().Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(report, "# %s codec=%s file=%s format=%s access_units=%d\n%s\n",
		key, out.stream.Codec, out.path, out.merger.Mode(), out.units, snap)

	tr := out.pipeline.Track()
	if !tr.Ready() {
		fmt.Fprintf(report, "# %s: track %s, no SDP\n\n", key, tr.State())
		return nil
	}
	sd, err := track.NewSession(key, tr)
	if err != nil {
		return err
	}
	raw, err := sd.Marshal()
	if err != nil {
		return err
	}
	fmt.Fprintf(report, "%s\n", raw)
	return nil
}
