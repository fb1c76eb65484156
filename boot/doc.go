// Package boot implements the one-shot boot sequence: self-test,
// calibration validation, boot configuration handling, factory-mode
// divert, application image verification, and the irreversible hand-off
// jump into the application.
//
// The sequencer walks a strictly ordered state machine
// (Init -> SelfTest -> ValidateParams -> CheckConfig -> [FactoryMode] ->
// VerifyApp -> JumpToApp) with the safe state reachable from every
// step. A set factory-mode flag diverts into the factory calibration
// session instead of jumping; when the session completes the flag is
// cleared and the processor resets, so the boot sequence always
// restarts from Init after any configuration change.
//
// Flash access goes through the Store, which performs the full
// read-modify-erase-program-verify sequence for every config-sector
// write: the boot config and the calibration record share one erase
// unit, so a config update must carry the calibration bytes through the
// erase intact.
package boot
