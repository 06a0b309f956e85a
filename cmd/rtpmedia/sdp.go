package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/zsiec/rtpmedia/media"
	"github.com/zsiec/rtpmedia/track"
)

func sdpCommand() *cli.Command {
	return &cli.Command{
		Name:      "sdp",
		Usage:     "print the SDP session announcing an elementary stream",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "elementary stream file"},
			&cli.StringFlag{Name: "codec", Aliases: []string{"c"}, Usage: "h264, h265 or aac (default: from the file extension)"},
			&cli.Float64Flag{Name: "fps", Value: 25, Usage: "video frame rate, used for the bandwidth line"},
			&cli.StringFlag{Name: "name", Usage: "session name (default: file name)"},
		},
		Action: func(c *cli.Context) error {
			input := c.String("input")
			var codec media.CodecID
			var err error
			if name := c.String("codec"); name != "" {
				codec, err = parseCodec(name)
			} else {
				codec, err = codecFromPath(input)
			}
			if err != nil {
				return err
			}
			name := c.String("name")
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			}
			return runSDP(input, codec, c.Float64("fps"), name, os.Stdout)
		},
	}
}

// runSDP configures a track from the parameter sets or ADTS headers found
// in the file and writes its session description. The average bitrate of
// the file becomes the b=AS line.
func runSDP(input string, codec media.CodecID, fps float64, name string, w io.Writer) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	frames, err := readES(data, codec, fps)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	tr, err := track.New(codec)
	if err != nil {
		return err
	}
	for _, f := range frames {
		tr.InputFrame(f)
	}
	if !tr.Ready() {
		return fmt.Errorf("%s: %w: track is %s", input, media.ErrConfigurationInsufficient, tr.State())
	}

	if durMS := frames[len(frames)-1].DTS() - frames[0].DTS(); durMS > 0 {
		tr.SetBitRate(int(int64(len(data)) * 8 * 1000 / durMS))
	}
	sd, err := track.NewSession(name, tr)
	if err != nil {
		return err
	}
	raw, err := sd.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}
