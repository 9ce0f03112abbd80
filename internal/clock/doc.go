// Package clock provides an injectable time source.
//
// Components that wait on deadlines take a Clock instead of calling
// time.Now and time.After directly. Production code passes Real(); tests
// pass Fake() and move time forward with Advance.
package clock
