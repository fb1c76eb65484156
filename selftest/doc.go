// Package selftest proves the processor, RAM, application image, and
// system clock trustworthy. At startup every test runs to completion and
// the sequence fails fast on the first failure: CPU pattern test, a
// six-phase non-destructive RAM march over a dedicated test window, a
// full CRC of the application image against the value stored in its last
// word, and a clock-frequency tolerance check. At runtime the full flash
// CRC is replaced by an incremental walk that processes one bounded block
// per monitor cycle and yields exactly the same value as the single pass.
//
// The CPU test is a simplified pattern check; a certified IEC 61508
// implementation requires a dedicated register self-test library.
package selftest
