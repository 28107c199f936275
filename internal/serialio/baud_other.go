//go:build !linux && !darwin

package serialio

// setBaud leaves the line speed as configured by the OS.
func setBaud(fd int, baud int) error {
	return nil
}
