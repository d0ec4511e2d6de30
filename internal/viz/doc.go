// Package viz renders joint reconstructions in the terminal.
//
// The package is built on Bubble Tea:
//
//   - [Model]: live progress of a running reconstruction, fed with
//     [RecordMsg] and [DoneMsg]
//   - [Picker]: preset selection menu
//   - [Heatmap]: shaded character rendering of a pixel map
//
// # Key Bindings
//
//	M - Toggle the ϕ map between the reconstruction and the search direction
//	T - Cycle color themes
//	? - Show help overlay
//	Q - Quit
package viz
