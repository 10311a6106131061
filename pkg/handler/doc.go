/*
Package handler implements the data service's query handlers: one
function per wire operation, each checking its required capability bit,
obtaining an effective transaction (the caller's, or a private one
committed or aborted locally), and translating storage/codec errors
into the wire status taxonomy.
*/
package handler
