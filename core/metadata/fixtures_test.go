package metadata

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func id3Frame(id string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(id)
	_ = binary.Write(&b, binary.BigEndian, uint32(len(body)))
	b.Write([]byte{0, 0})
	b.Write(body)
	return b.Bytes()
}

func id3Text(id, text string) []byte {
	return id3Frame(id, append([]byte{0x00}, text...))
}

// id3v23 builds an ID3v2.3 tag with no audio behind it.
func id3v23(frames ...[]byte) []byte {
	body := bytes.Join(frames, nil)
	size := len(body)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7F), byte(size >> 14 & 0x7F), byte(size >> 7 & 0x7F), byte(size & 0x7F)}
	return append(header, body...)
}

func id3Picture(mime string, data []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(0x00)
	b.WriteString(mime)
	b.WriteByte(0x00)
	b.WriteByte(0x03)
	b.WriteByte(0x00)
	b.Write(data)
	return id3Frame("APIC", b.Bytes())
}

// mpegFrames is n silent MPEG-1 Layer III frames, 128 kbps, 44.1 kHz.
func mpegFrames(n int, mono bool) []byte {
	header := []byte{0xFF, 0xFB, 0x90, 0x00}
	if mono {
		header[3] = 0xC0
	}
	frame := make([]byte, 417)
	copy(frame, header)
	return bytes.Repeat(frame, n)
}

func streamInfo(sampleRate, channels, bitsPerSample int, totalSamples int64) *flac.MetaDataBlock {
	b := make([]byte, 34)
	binary.BigEndian.PutUint16(b[0:2], 4096)
	binary.BigEndian.PutUint16(b[2:4], 4096)
	b[10] = byte(sampleRate >> 12)
	b[11] = byte(sampleRate >> 4)
	b[12] = byte(sampleRate&0x0F)<<4 | byte(channels-1)<<1 | byte((bitsPerSample-1)>>4)
	b[13] = byte((bitsPerSample-1)&0x0F)<<4 | byte(totalSamples>>32&0x0F)
	binary.BigEndian.PutUint32(b[14:18], uint32(totalSamples))
	return &flac.MetaDataBlock{Type: flac.StreamInfo, Data: b}
}

func vorbisBlock(t *testing.T, fields map[string]string) *flac.MetaDataBlock {
	t.Helper()
	cmt := flacvorbis.New()
	for k, v := range fields {
		require.NoError(t, cmt.Add(k, v))
	}
	blk := cmt.Marshal()
	return &blk
}

func pictureBlock(t *testing.T, data []byte) *flac.MetaDataBlock {
	t.Helper()
	pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front Cover", data, "image/png")
	require.NoError(t, err)
	blk := pic.Marshal()
	return &blk
}

func flacFile(blocks ...*flac.MetaDataBlock) []byte {
	f := &flac.File{Meta: blocks}
	return f.Marshal()
}

// wavFile encodes seconds of 16-bit silence.
func wavFile(t *testing.T, sampleRate, channels, seconds int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, sampleRate*channels*seconds),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func mp4Atom(name string, body []byte) []byte {
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], name)
	return append(out, body...)
}

func mp4File(timescale, duration uint32) []byte {
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:16], timescale)
	binary.BigEndian.PutUint32(mvhd[16:20], duration)
	ftyp := mp4Atom("ftyp", []byte("M4A \x00\x00\x00\x00M4A isom"))
	return append(ftyp, mp4Atom("moov", mp4Atom("mvhd", mvhd))...)
}

// mp4AudioFile adds one track whose stsd holds an mp4a sample entry.
func mp4AudioFile(timescale, duration uint32, sampleRate uint16, channels uint16) []byte {
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:16], timescale)
	binary.BigEndian.PutUint32(mvhd[16:20], duration)

	entry := make([]byte, 28)
	binary.BigEndian.PutUint16(entry[6:8], 1)
	binary.BigEndian.PutUint16(entry[16:18], channels)
	binary.BigEndian.PutUint16(entry[18:20], 16)
	binary.BigEndian.PutUint32(entry[24:28], uint32(sampleRate)<<16)

	stsd := make([]byte, 8)
	binary.BigEndian.PutUint32(stsd[4:8], 1)
	stsd = append(stsd, mp4Atom("mp4a", entry)...)

	stbl := mp4Atom("stbl", mp4Atom("stsd", stsd))
	trak := mp4Atom("trak", mp4Atom("mdia", mp4Atom("minf", stbl)))
	moov := mp4Atom("moov", append(mp4Atom("mvhd", mvhd), trak...))
	return append(mp4Atom("ftyp", []byte("M4A \x00\x00\x00\x00M4A isom")), moov...)
}

var oggCRCTable = func() [256]uint32 {
	var t [256]uint32
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func oggChecksum(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

// oggPageWith builds a single-packet page with a valid checksum.
func oggPageWith(flags byte, seq uint32, granule uint64, packet []byte) []byte {
	page := make([]byte, 28)
	copy(page, "OggS")
	page[5] = flags
	binary.LittleEndian.PutUint64(page[6:14], granule)
	binary.LittleEndian.PutUint32(page[14:18], 0x4b4c)
	binary.LittleEndian.PutUint32(page[18:22], seq)
	page[26] = 1
	page[27] = byte(len(packet))
	page = append(page, packet...)
	binary.LittleEndian.PutUint32(page[22:26], oggChecksum(page))
	return page
}

func oggPage(granule uint64, packet []byte) []byte {
	return oggPageWith(0x02, 0, granule, packet)
}

func oggVorbis(sampleRate uint32, channels byte, lastGranule uint64) []byte {
	id := make([]byte, 30)
	copy(id, "\x01vorbis")
	id[11] = channels
	binary.LittleEndian.PutUint32(id[12:16], sampleRate)
	id[28] = 0xb8 // blocksize 256 / 2048
	id[29] = 1

	comment := make([]byte, 16)
	copy(comment, "\x03vorbis")
	comment[15] = 1

	out := oggPageWith(0x02, 0, 0, id)
	out = append(out, oggPageWith(0x00, 1, 0, comment)...)
	return append(out, oggPageWith(0x04, 2, lastGranule, []byte{0x00})...)
}
