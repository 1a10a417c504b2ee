package main

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

// CodecType represents the video codec of the published files
type CodecType string

const (
	CodecVP8  CodecType = "vp8"
	CodecVP9  CodecType = "vp9"
	CodecH264 CodecType = "h264"
)

// CodecInfo describes a codec option
type CodecInfo struct {
	Type        CodecType
	Name        string // Display name
	Description string // Short description
	MimeType    string
	FourCC      string // IVF header tag, empty for Annex-B files
}

// AvailableCodecs lists the codecs a camera or screen file may use
var AvailableCodecs = []CodecInfo{
	{Type: CodecVP8, Name: "VP8", Description: "IVF file", MimeType: webrtc.MimeTypeVP8, FourCC: "VP80"},
	{Type: CodecVP9, Name: "VP9", Description: "IVF file", MimeType: webrtc.MimeTypeVP9, FourCC: "VP90"},
	{Type: CodecH264, Name: "H.264", Description: "Annex-B file", MimeType: webrtc.MimeTypeH264},
}

// CodecByType finds a codec by type
func CodecByType(codecType CodecType) *CodecInfo {
	for i := range AvailableCodecs {
		if AvailableCodecs[i].Type == codecType {
			return &AvailableCodecs[i]
		}
	}
	return nil
}

// ParseCodecFlag parses the --codec flag value
func ParseCodecFlag(value string) CodecType {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "vp8":
		return CodecVP8
	case "vp9":
		return CodecVP9
	case "h264", "h.264", "avc":
		return CodecH264
	default:
		return CodecVP8
	}
}

// checkFourCC rejects an IVF file whose codec does not match the track
func (c CodecInfo) checkFourCC(fourcc string) error {
	if c.FourCC == "" {
		return fmt.Errorf("%s files are not IVF", c.Name)
	}
	if !strings.EqualFold(strings.TrimRight(fourcc, "\x00 "), c.FourCC) {
		return fmt.Errorf("file codec %q does not match %s", fourcc, c.Name)
	}
	return nil
}
