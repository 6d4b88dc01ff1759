package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/abema/go-mp4"
	"github.com/go-audio/wav"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var errTruncated = errors.New("truncated stream")

// readFLAC takes stream properties from STREAMINFO, fills text fields the
// generic tag reader missed from the Vorbis comment, and replaces the cover
// with the first PICTURE block. Only the metadata blocks are read, so a file
// truncated after them still yields every field.
func readFLAC(data []byte, out *Extracted) error {
	f, err := flac.ParseMetadata(bytes.NewReader(data[id3v2Size(data):]))
	if err != nil {
		return err
	}
	if len(f.Meta) == 0 {
		return fmt.Errorf("flac: %w", flac.ErrorNoStreamInfo)
	}

	info, err := f.GetStreamInfo()
	if err != nil {
		return err
	}
	if info.SampleRate == 0 {
		return fmt.Errorf("streaminfo: zero sample rate")
	}
	out.SampleRate = intPtr(info.SampleRate)
	out.Channels = intPtr(info.ChannelCount)
	if info.SampleCount > 0 {
		seconds := float64(info.SampleCount) / float64(info.SampleRate)
		setDuration(out, seconds)
		setAverageBitrate(out, len(data), seconds)
	}

	var firstPicture *flacpicture.MetadataBlockPicture
	for _, block := range f.Meta {
		switch block.Type {
		case flac.VorbisComment:
			if cmt, err := flacvorbis.ParseFromMetaDataBlock(*block); err == nil {
				applyVorbis(cmt, out)
			}
		case flac.Picture:
			if firstPicture != nil {
				continue
			}
			if pic, err := flacpicture.ParseFromMetaDataBlock(*block); err == nil && len(pic.ImageData) > 0 {
				firstPicture = pic
			}
		}
	}

	if firstPicture != nil {
		out.CoverArt = &CoverArt{Data: firstPicture.ImageData, Format: pictureMIME(firstPicture.MIME, firstPicture.ImageData)}
	}
	return nil
}

func applyVorbis(cmt *flacvorbis.MetaDataBlockVorbisComment, out *Extracted) {
	get := func(key string) string {
		vals, err := cmt.Get(key)
		if err != nil || len(vals) == 0 {
			return ""
		}
		return clean(vals[0])
	}
	if out.Title == "" {
		out.Title = get(flacvorbis.FIELD_TITLE)
	}
	if out.Artist == "" {
		out.Artist = get(flacvorbis.FIELD_ARTIST)
	}
	if out.Album == "" {
		out.Album = get(flacvorbis.FIELD_ALBUM)
	}
	if out.Genre == "" {
		out.Genre = firstValue(get(flacvorbis.FIELD_GENRE))
	}
	if out.Year == nil {
		if y, ok := parseLeadingInt(get(flacvorbis.FIELD_DATE)); ok {
			out.Year = intPtr(y)
		}
	}
	if out.TrackNumber == nil {
		if n, ok := parseLeadingInt(get(flacvorbis.FIELD_TRACKNUMBER)); ok {
			out.TrackNumber = intPtr(n)
		}
	}
	if out.DiscNumber == nil {
		if n, ok := parseLeadingInt(get("DISCNUMBER")); ok {
			out.DiscNumber = intPtr(n)
		}
	}
}

// readMPEG decodes the whole stream to measure it; go-mp3 always emits
// 16-bit stereo, so four bytes make one sample frame.
func readMPEG(data []byte, out *Extracted) error {
	offset := id3v2Size(data)
	ch, ok := mpegChannels(data[offset:])
	if !ok {
		return fmt.Errorf("mpeg: no frame sync")
	}
	out.Channels = intPtr(ch)

	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return err
	}
	rate := d.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("mpeg: no sample rate")
	}
	out.SampleRate = intPtr(rate)

	length := d.Length()
	if length <= 0 {
		return fmt.Errorf("mpeg: unknown length")
	}
	seconds := float64(length) / 4 / float64(rate)
	setDuration(out, seconds)
	setAverageBitrate(out, len(data)-offset, seconds)
	return nil
}

// mpegChannels reads the channel mode of the first frame header.
func mpegChannels(b []byte) (int, bool) {
	for i := 0; i+3 < len(b) && i < 4096; i++ {
		if b[i] == 0xFF && b[i+1]&0xE0 == 0xE0 && (b[i+1]>>1)&0x03 != 0 {
			if b[i+3]>>6 == 0x03 {
				return 1, true
			}
			return 2, true
		}
	}
	return 0, false
}

// readWAVE takes the fmt chunk and the LIST/INFO tags, since RIFF files carry
// no ID3 frame for the generic reader.
func readWAVE(data []byte, out *Extracted) error {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return fmt.Errorf("wave: invalid file")
	}
	out.SampleRate = intPtr(int(d.SampleRate))
	out.Channels = intPtr(int(d.NumChans))
	if d.SampleRate > 0 && d.BitDepth > 0 {
		out.Bitrate = intPtr(int(d.SampleRate) * int(d.NumChans) * int(d.BitDepth))
	}

	dur, err := d.Duration()
	if err != nil {
		return err
	}
	setDuration(out, dur.Seconds())

	md := wav.NewDecoder(bytes.NewReader(data))
	md.ReadMetadata()
	if md.Metadata != nil {
		out.Title = clean(md.Metadata.Title)
		out.Artist = clean(md.Metadata.Artist)
		out.Album = clean(md.Metadata.Product)
		out.Genre = firstValue(md.Metadata.Genre)
		if n, ok := parseLeadingInt(md.Metadata.TrackNbr); ok {
			out.TrackNumber = intPtr(n)
		}
		if y, ok := parseLeadingInt(md.Metadata.CreationDate); ok && y > 999 {
			out.Year = intPtr(y)
		}
	}
	return nil
}

// readMP4 converts the moov/mvhd duration out of the movie timescale and,
// when the first audio track carries an mp4a sample entry, takes its rate
// and channel count.
func readMP4(data []byte, out *Extracted) error {
	r := bytes.NewReader(data)
	boxes, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return fmt.Errorf("mp4: %w", err)
	}
	if len(boxes) == 0 {
		return fmt.Errorf("mp4: no mvhd box")
	}
	mvhd, ok := boxes[0].Payload.(*mp4.Mvhd)
	if !ok || mvhd.Timescale == 0 {
		return fmt.Errorf("mvhd: zero timescale")
	}
	seconds := float64(mvhd.GetDuration()) / float64(mvhd.Timescale)
	setDuration(out, seconds)
	setAverageBitrate(out, len(data), seconds)

	entries, err := mp4.ExtractBoxWithPayload(bytes.NewReader(data), nil, mp4.BoxPath{
		mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(),
		mp4.BoxTypeStbl(), mp4.BoxTypeStsd(), mp4.BoxTypeMp4a(),
	})
	if err != nil || len(entries) == 0 {
		return nil
	}
	if ase, ok := entries[0].Payload.(*mp4.AudioSampleEntry); ok && ase.SampleRate>>16 > 0 {
		out.SampleRate = intPtr(int(ase.SampleRate >> 16))
		out.Channels = intPtr(int(ase.ChannelCount))
	}
	return nil
}

// readOgg takes the rate and channel count from the Vorbis identification
// header and the duration from the granule position of the last page.
func readOgg(data []byte, out *Extracted) error {
	format, err := oggvorbis.GetFormat(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ogg: %w", err)
	}
	if format.SampleRate <= 0 {
		return fmt.Errorf("ogg: zero sample rate")
	}
	out.SampleRate = intPtr(format.SampleRate)
	out.Channels = intPtr(format.Channels)

	// 末页头部: "OggS" version flags granule(8)
	last := bytes.LastIndex(data, []byte("OggS"))
	if last < 0 || last+14 > len(data) {
		return fmt.Errorf("ogg: %w", errTruncated)
	}
	granule := binary.LittleEndian.Uint64(data[last+6 : last+14])
	if granule == 0 || granule == ^uint64(0) {
		return nil
	}
	seconds := float64(granule) / float64(format.SampleRate)
	setDuration(out, seconds)
	setAverageBitrate(out, len(data), seconds)
	return nil
}
