// Package memory derives the Go soft memory limit from a container's
// memory limit, so the garbage collector works harder before the kernel
// OOM killer steps in.
//
// In Kubernetes, pass the limit through the Downward API:
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
package memory
