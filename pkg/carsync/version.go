package carsync

// Version is the carsync release version.
const Version = "0.1.0"
