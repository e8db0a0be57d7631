// Package common contains the configuration and logging shared by the refmap commands.
//
// Loggers follow the dragonboat logger.ILogger interface: packages obtain a named logger
// with logger.GetLogger and InitLoggers installs the custom factory and log level.
package common
