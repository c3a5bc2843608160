package cursorpipe

// MonochromeToARGB expands a 1-bpp AND/XOR cursor mask pair into ARGB32
// pixels: the mask buffer is split into an XOR half followed by an AND
// half, each row packed 8 pixels to a byte (MSB first); draw black where
// the two bits agree, white where XOR alone is set, and leave a pixel
// transparent otherwise. A one-pixel white border is added around drawn
// pixels so the cursor stays visible against a black background.
func MonochromeToARGB(mask []byte, width, height uint32) []uint32 {
	out := make([]uint32, width*height)
	half := len(mask) / 2
	xorMask := mask[:half]
	andMask := mask[half:]

	bitIdx := 8
	maskIdx := 0
	for i := range out {
		andBit := (andMask[maskIdx] >> (bitIdx - 1)) & 1
		xorBit := (xorMask[maskIdx] >> (bitIdx - 1)) & 1

		drawBorder := false
		switch {
		case andBit == 1 && xorBit == 1:
			out[i] = 0xFF000000
			drawBorder = true
		case andBit == 0 && xorBit == 0:
			out[i] = 0xFF000000
			drawBorder = true
		case andBit == 0 && xorBit == 1:
			out[i] = 0xFFFFFFFF
		}

		if drawBorder {
			w := int(width)
			neighbors := [8]int{i - w - 1, i - w, i - w + 1, i - 1, i + 1, i + w - 1, i + w, i + w + 1}
			for _, pos := range neighbors {
				if pos < 0 || pos >= len(out) {
					continue
				}
				if out[pos] != 0xFF000000 {
					out[pos] = 0xFFFFFFFF
				}
			}
		}

		bitIdx--
		if bitIdx == 0 {
			maskIdx++
			bitIdx = 8
		}
	}
	return out
}
