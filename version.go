package main

// AppVersion is the sparkclient release
const AppVersion = "0.4.0"
