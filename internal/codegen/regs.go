package codegen

// Target VM register convention.
//
// R0 and R1 are the flag and instruction-pointer registers and are never
// touched directly. R2 carries the return value and doubles as the first
// argument slot; stack management lives in R11/R12; R14 is the return
// address and R15 the I/O register.
const (
	regRetVal = 2 // return value / first argument
	regArg1   = 3
	regArg2   = 4
	regArg3   = 5

	maxRegParams = 4

	regT0 = 8 // caller-saved scratches
	regT1 = 9
	regT2 = 10
	regT3 = 13

	regFP = 11
	regSP = 12
	regRA = 14
	regIO = 15

	numRegs = 16
)

// initialSP is where the fixed prologue points the stack before jumping to
// main. The stack grows down from here.
const initialSP = 65535
