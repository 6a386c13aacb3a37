package filters

import "fmt"

// RunLengthDecode decodes RunLengthDecode data. A length byte L below 128
// copies the next L+1 bytes, a byte above 128 repeats the next byte 257-L
// times, and 128 ends the data.
func RunLengthDecode(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data)*2)
	for i := 0; i < len(data); {
		l := int(data[i])
		i++
		switch {
		case l == 128:
			return out, nil
		case l < 128:
			if i+l+1 > len(data) {
				return nil, fmt.Errorf("run length literal of %d bytes truncated at %d", l+1, i)
			}
			out = append(out, data[i:i+l+1]...)
			i += l + 1
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("run length repeat truncated at %d", i)
			}
			for n := 0; n < 257-l; n++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}
