// Package queue provides an unbounded FIFO used wherever a producer must
// never block or drop: bank messages waiting for delivery and journal
// events waiting for a flush.
//
// The backing ring doubles when it reaches 70% of capacity, so Push only
// fails after Close.
package queue
