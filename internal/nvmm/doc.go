// Package nvmm reads NVIDIA NVMM device surfaces. Device support is compiled in
// with -tags nvmm; without it the device route reports UnsupportedFormat.
package nvmm
