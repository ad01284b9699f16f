// Package pcm converts audio between normalized float samples and 16-bit
// little-endian PCM, and between raw PCM bytes and the text-safe encoding
// used on the live transport.
//
// # Sample format
//
// Outbound audio is captured as float32 samples in [-1, 1]. Encode maps each
// sample to round(sample*32768), clipped to the int16 range. Decode performs
// the inverse division by 32768 and de-interleaves multichannel data:
//
//	data := pcm.Encode(block)                 // []float32 -> []byte
//	text := pcm.ToTransportText(data)         // []byte -> base64 text
//	raw, _ := pcm.FromTransportText(text)     // base64 text -> []byte
//	buf, err := pcm.Decode(raw, 24000, 1)     // []byte -> *pcm.Buffer
//
// A byte slice whose length is not a multiple of 2*channels fails with a
// *MalformedAudioError.
package pcm
