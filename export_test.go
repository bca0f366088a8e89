package clidrive

// Fixture exposes the fixture command line builder to the external tests.
var Fixture = fixture
