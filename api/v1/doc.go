// Package apiv1 defines the JSON wire types of the FidLoc HTTP API.
//
// Every JSON response is wrapped in a Response envelope. Location
// documents travel as domain.Location.
package apiv1
