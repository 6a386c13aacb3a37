package pdfsizeopt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/internal/filters"
)

// PNG color types.
const (
	pngGray    = 0
	pngRGB     = 2
	pngPalette = 3
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var errPNG = errors.New("unsupported PNG")

// pngImage is a non-interlaced PNG without transparency. Its IDAT data
// is exactly a PDF Flate stream with /Predictor 15.
type pngImage struct {
	width, height int
	depth         int
	colorType     int
	palette       []byte // RGB triples
	idat          []byte
}

func (p *pngImage) colors() int {
	if p.colorType == pngRGB {
		return 3
	}
	return 1
}

// encodePNG builds a PNG file from PDF image samples: rows of rowBytes
// bytes, each written with filter type 0.
func encodePNG(img *pngImage, samples []byte, rowBytes int) ([]byte, error) {
	raw := make([]byte, 0, img.height*(rowBytes+1))
	for y := 0; y < img.height; y++ {
		raw = append(raw, 0)
		raw = append(raw, samples[y*rowBytes:(y+1)*rowBytes]...)
	}
	idat, err := filters.FlateEncode(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(pngSignature)
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(img.width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(img.height))
	ihdr[8] = byte(img.depth)
	ihdr[9] = byte(img.colorType)
	writeChunk(&buf, "IHDR", ihdr)
	if img.colorType == pngPalette {
		writeChunk(&buf, "PLTE", img.palette)
	}
	writeChunk(&buf, "IDAT", idat)
	writeChunk(&buf, "IEND", nil)
	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, typ string, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	crc := crc32.NewIEEE()
	crc.Write([]byte(typ))
	crc.Write(data)
	buf.WriteString(typ)
	buf.Write(data)
	binary.BigEndian.PutUint32(n[:], crc.Sum32())
	buf.Write(n[:])
}

// parsePNG reads the chunks of a PNG file written by an image tool.
// Alpha channels, transparency and interlacing are refused.
func parsePNG(data []byte) (*pngImage, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.Wrap(errPNG, "bad signature")
	}
	img := &pngImage{}
	var idat bytes.Buffer
	seenHeader := false
	for pos := len(pngSignature); ; {
		if pos+8 > len(data) {
			return nil, errors.Wrap(errPNG, "truncated")
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		if n < 0 || pos+12+n > len(data) {
			return nil, errors.Wrapf(errPNG, "truncated %s chunk", typ)
		}
		chunk := data[pos+8 : pos+8+n]
		pos += 12 + n
		switch typ {
		case "IHDR":
			if n != 13 {
				return nil, errors.Wrap(errPNG, "bad IHDR")
			}
			img.width = int(binary.BigEndian.Uint32(chunk))
			img.height = int(binary.BigEndian.Uint32(chunk[4:]))
			img.depth = int(chunk[8])
			img.colorType = int(chunk[9])
			if chunk[10] != 0 || chunk[11] != 0 {
				return nil, errors.Wrap(errPNG, "unknown compression or filter method")
			}
			if chunk[12] != 0 {
				return nil, errors.Wrap(errPNG, "interlaced")
			}
			switch img.colorType {
			case pngGray, pngRGB, pngPalette:
			default:
				return nil, errors.Wrapf(errPNG, "color type %d", img.colorType)
			}
			seenHeader = true
		case "PLTE":
			img.palette = append([]byte(nil), chunk...)
		case "tRNS":
			return nil, errors.Wrap(errPNG, "transparency")
		case "IDAT":
			idat.Write(chunk)
		case "IEND":
			if !seenHeader || idat.Len() == 0 {
				return nil, errors.Wrap(errPNG, "missing IHDR or IDAT")
			}
			if img.colorType == pngPalette && len(img.palette) == 0 {
				return nil, errors.Wrap(errPNG, "missing PLTE")
			}
			img.idat = idat.Bytes()
			return img, nil
		}
	}
}
